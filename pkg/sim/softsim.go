package sim

import (
	"context"
	"sync"
	"time"
)

const defaultPinAttempts = 3

// SoftSIM 软件 SIM 实现
// 不需要物理 SIM 卡，用于测试或演示场景。PIN 连续输错 attempts 次后进入 PUK 锁定。
type SoftSIM struct {
	mu sync.Mutex

	IMSI     string
	pin      string
	puk      string
	state    State
	attempts int

	// Latency 模拟 Modem 的响应延迟
	Latency  time.Duration
	failNext error
}

// NewSoftSIM 创建软件 SIM
// pin 为空时 SIM 处于 READY 状态
func NewSoftSIM(imsi, pin, puk string) *SoftSIM {
	s := &SoftSIM{
		IMSI:     imsi,
		pin:      pin,
		puk:      puk,
		state:    StateReady,
		attempts: defaultPinAttempts,
	}
	if pin != "" {
		s.state = StatePinRequired
	}
	return s
}

// SetState 强制设置 SIM 状态 (例如模拟拔卡)
func (s *SoftSIM) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Attempts 返回剩余的 PIN 尝试次数
func (s *SoftSIM) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *SoftSIM) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FailNext 让下一次调用返回 err (模拟通信失败)
func (s *SoftSIM) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *SoftSIM) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// SimState 返回当前状态
func (s *SoftSIM) SimState(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return StateUnknown, err
	}
	return s.state, nil
}

// SupplyPin 校验 PIN
func (s *SoftSIM) SupplyPin(ctx context.Context, pin string) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return false, err
	}

	switch s.state {
	case StateAbsent:
		return false, ErrSIMNotPresent
	case StateReady:
		return true, nil
	case StatePukRequired:
		// PUK 锁定后只接受 PUK
		if s.puk != "" && pin == s.puk {
			s.state = StateReady
			s.attempts = defaultPinAttempts
			return true, nil
		}
		return false, nil
	}

	if pin == s.pin {
		s.state = StateReady
		s.attempts = defaultPinAttempts
		return true, nil
	}

	s.attempts--
	if s.attempts <= 0 {
		s.state = StatePukRequired
	}
	return false, nil
}

// GetIMSI 返回 IMSI
func (s *SoftSIM) GetIMSI() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAbsent {
		return "", ErrSIMNotPresent
	}
	return s.IMSI, nil
}

// Close 关闭 (无操作)
func (s *SoftSIM) Close() error {
	return nil
}
