package sim

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedPort 按指令返回预设响应的假串口
type scriptedPort struct {
	mu       sync.Mutex
	replies  map[string]string
	pending  bytes.Buffer
	commands []string
	writeErr error
	dlErr    error
}

func newScriptedPort(replies map[string]string) *scriptedPort {
	return &scriptedPort{replies: replies}
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	cmd := strings.TrimSpace(string(b))
	p.commands = append(p.commands, cmd)
	// 模拟 Modem 回显
	p.pending.WriteString(cmd + "\r\n")
	p.pending.WriteString(p.replies[cmd])
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Read(b)
}

func (p *scriptedPort) Close() error                      { return nil }
func (p *scriptedPort) SetReadDeadline(t time.Time) error { return p.dlErr }

func TestParseCPIN(t *testing.T) {
	cases := map[string]State{
		"+CPIN: READY\n":      StateReady,
		"+CPIN: SIM PIN\n":    StatePinRequired,
		"+CPIN: SIM PUK\n":    StatePukRequired,
		"+CPIN: PH-NET PIN\n": StateNetworkLocked,
		"+CPIN: SIM PIN2\n":   StateUnknown,
		"garbage\n":           StateUnknown,
	}
	for resp, want := range cases {
		require.Equal(t, want, parseCPIN(resp), resp)
	}
}

func TestDirectSIMState(t *testing.T) {
	port := newScriptedPort(map[string]string{
		"AT+CPIN?": "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n",
	})
	s := NewDirectSIMWithPort("fake", port, time.Second)

	st, err := s.SimState(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatePinRequired, st)
}

func TestDirectSIMStateNotInserted(t *testing.T) {
	port := newScriptedPort(map[string]string{
		"AT+CPIN?": "\r\n+CME ERROR: 10\r\n",
	})
	s := NewDirectSIMWithPort("fake", port, time.Second)

	st, err := s.SimState(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateAbsent, st)
}

func TestDirectSIMSupplyPin(t *testing.T) {
	port := newScriptedPort(map[string]string{
		`AT+CPIN="1234"`: "\r\nOK\r\n",
		`AT+CPIN="0000"`: "\r\n+CME ERROR: 16\r\n",
	})
	s := NewDirectSIMWithPort("fake", port, time.Second)
	ctx := context.Background()

	ok, err := s.SupplyPin(ctx, "1234")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.SupplyPin(ctx, "0000")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDirectSIMSupplyPinRejectsNonDigits(t *testing.T) {
	port := newScriptedPort(nil)
	s := NewDirectSIMWithPort("fake", port, time.Second)

	ok, err := s.SupplyPin(context.Background(), `12"34`)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, port.commands)
}

func TestDirectSIMSupplyPinCommunicationFailure(t *testing.T) {
	port := newScriptedPort(nil)
	port.writeErr = errors.New("tty gone")
	s := NewDirectSIMWithPort("fake", port, time.Second)

	ok, err := s.SupplyPin(context.Background(), "1234")
	require.ErrorIs(t, err, ErrCommunication)
	require.False(t, ok)
}

func TestDirectSIMTimeout(t *testing.T) {
	// 没有 OK 的响应读到 EOF 视为超时
	port := newScriptedPort(map[string]string{
		"AT+CPIN?": "\r\n+CPIN: READY\r\n",
	})
	s := NewDirectSIMWithPort("fake", port, time.Second)

	_, err := s.SimState(context.Background())
	require.ErrorIs(t, err, ErrCommunication)
	require.ErrorContains(t, err, ErrATTimeout.Error())
}

func TestDirectSIMDeadlineUnsupported(t *testing.T) {
	port := newScriptedPort(map[string]string{
		"AT+CPIN?": "\r\n+CPIN: READY\r\n\r\nOK\r\n",
	})
	port.dlErr = os.ErrNoDeadline
	s := NewDirectSIMWithPort("fake", port, time.Second)

	_, err := s.SimState(context.Background())
	require.ErrorIs(t, err, ErrCommunication)
	require.ErrorIs(t, err, os.ErrNoDeadline)

	ok, err := s.SupplyPin(context.Background(), "1234")
	require.ErrorIs(t, err, ErrCommunication)
	require.False(t, ok)
}

func TestDirectSIMGetIMSI(t *testing.T) {
	port := newScriptedPort(map[string]string{
		"AT+CIMI": "\r\n001010123456789\r\n\r\nOK\r\n",
	})
	s := NewDirectSIMWithPort("fake", port, time.Second)

	imsi, err := s.GetIMSI()
	require.NoError(t, err)
	require.Equal(t, "001010123456789", imsi)
}
