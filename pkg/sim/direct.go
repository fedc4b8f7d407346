package sim

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iniwex5/keyguard-go/pkg/logger"
)

const (
	defaultBaudRate  = 115200
	defaultATTimeout = 3 * time.Second

	cmeSIMNotInserted    = 10
	cmeSIMPinRequired    = 11
	cmeSIMPukRequired    = 12
	cmeIncorrectPassword = 16
)

// Port Modem AT 串口的最小抽象 (*os.File 满足该接口)
type Port interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// ATError Modem 返回的 ERROR / +CME ERROR
type ATError struct {
	Line string
	CME  int // -1 表示没有 CME 错误码
}

func (e *ATError) Error() string {
	return fmt.Sprintf("AT command error: %s", e.Line)
}

func parseATError(line string) *ATError {
	e := &ATError{Line: line, CME: -1}
	if rest, ok := strings.CutPrefix(line, "+CME ERROR:"); ok {
		if code, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			e.CME = code
		}
	}
	return e
}

// DirectSIM 通过 Modem 的 AT 指令访问物理 SIM 卡
type DirectSIM struct {
	devPath string
	port    Port
	timeout time.Duration
	mu      sync.Mutex
}

// NewDirectSIM 打开串口设备，baudRate 为 0 时使用 115200
func NewDirectSIM(path string, baudRate int, timeout time.Duration) (*DirectSIM, error) {
	if baudRate == 0 {
		baudRate = defaultBaudRate
	}
	f, err := OpenSerial(path, baudRate)
	if err != nil {
		return nil, err
	}
	logger.Named("sim").Info("已打开 Modem 串口", logger.String("device", path), logger.Int("baud", baudRate))
	return NewDirectSIMWithPort(path, f, timeout), nil
}

// NewDirectSIMWithPort 使用已打开的端口 (测试或自定义传输)
func NewDirectSIMWithPort(name string, port Port, timeout time.Duration) *DirectSIM {
	if timeout <= 0 {
		timeout = defaultATTimeout
	}
	return &DirectSIM{
		devPath: name,
		port:    port,
		timeout: timeout,
	}
}

func (s *DirectSIM) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// 发送 AT 指令并等待 OK 或 ERROR
func (s *DirectSIM) sendATCommand(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := io.WriteString(s.port, cmd+"\r\n"); err != nil {
		return "", err
	}

	deadLine := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadLine) {
		deadLine = d
	}
	if err := s.port.SetReadDeadline(deadLine); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}

	var response bytes.Buffer
	scanner := bufio.NewScanner(s.port)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// 回显的指令本身
		if line == cmd {
			continue
		}

		if line == "OK" {
			return response.String(), nil
		}
		if strings.Contains(line, "ERROR") {
			return response.String(), parseATError(line)
		}
		response.WriteString(line + "\n")

		if time.Now().After(deadLine) {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return response.String(), ErrATTimeout
		}
		return response.String(), err
	}

	return response.String(), ErrATTimeout
}

// SimState 通过 AT+CPIN? 查询 SIM 锁状态
func (s *DirectSIM) SimState(ctx context.Context) (State, error) {
	resp, err := s.sendATCommand(ctx, "AT+CPIN?")
	if err != nil {
		var atErr *ATError
		if errors.As(err, &atErr) {
			switch atErr.CME {
			case cmeSIMNotInserted:
				return StateAbsent, nil
			case cmeSIMPinRequired:
				return StatePinRequired, nil
			case cmeSIMPukRequired:
				return StatePukRequired, nil
			}
		}
		return StateUnknown, fmt.Errorf("%w: %w", ErrCommunication, err)
	}
	return parseCPIN(resp), nil
}

func parseCPIN(resp string) State {
	for _, line := range strings.Split(resp, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "+CPIN:")
		if !ok {
			continue
		}
		switch strings.TrimSpace(rest) {
		case "READY":
			return StateReady
		case "SIM PIN":
			return StatePinRequired
		case "SIM PUK":
			return StatePukRequired
		case "PH-NET PIN", "PH-NET PUK", "PH-NETSUB PIN", "PH-SP PIN", "PH-CORP PIN":
			return StateNetworkLocked
		default:
			return StateUnknown
		}
	}
	return StateUnknown
}

// SupplyPin 通过 AT+CPIN="<pin>" 提交 PIN
func (s *DirectSIM) SupplyPin(ctx context.Context, pin string) (bool, error) {
	log := logger.Named("sim")
	if pin == "" || !isDigits(pin) {
		log.Warn("拒绝提交非数字 PIN", logger.Int("len", len(pin)))
		return false, nil
	}

	_, err := s.sendATCommand(ctx, fmt.Sprintf("AT+CPIN=\"%s\"", pin))
	if err == nil {
		return true, nil
	}

	var atErr *ATError
	if errors.As(err, &atErr) {
		switch atErr.CME {
		case cmeIncorrectPassword, cmeSIMPukRequired, -1:
			log.Info("SIM 拒绝了 PIN", logger.String("resp", atErr.Line))
			return false, nil
		case cmeSIMNotInserted:
			return false, fmt.Errorf("%w: %w", ErrCommunication, ErrSIMNotPresent)
		}
	}
	return false, fmt.Errorf("%w: %w", ErrCommunication, err)
}

func (s *DirectSIM) GetIMSI() (string, error) {
	resp, err := s.sendATCommand(context.Background(), "AT+CIMI")
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(resp, "\n") {
		// 有效的 IMSI 通常是 15 位数字
		if len(line) >= 14 && len(line) <= 16 && isDigits(line) {
			return line, nil
		}
	}
	return "", errors.New("IMSI not found in response")
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
