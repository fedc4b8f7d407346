package sim

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iniwex5/keyguard-go/pkg/logger"
)

const defaultPollInterval = 5 * time.Second

// Monitor 在后台轮询 SIM 状态，对外提供不阻塞的最近一次状态
// 锁屏判断运行在 owner 协程上，不能等待 Modem 的 AT 响应。
type Monitor struct {
	reader   StateReader
	interval time.Duration

	mu       sync.RWMutex
	state    State
	lastErr  error
	onChange []func(old, cur State)
}

func NewMonitor(reader StateReader, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Monitor{
		reader:   reader,
		interval: interval,
		state:    StateUnknown,
	}
}

// OnChange 注册状态变化回调 (在轮询协程中调用)
func (m *Monitor) OnChange(fn func(old, cur State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// SimState 返回最近一次成功轮询到的状态
// 轮询失败时保留旧状态；只有从未成功过时才返回错误。
func (m *Monitor) SimState(ctx context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateUnknown {
		return m.state, m.lastErr
	}
	return m.state, nil
}

// LastError 最近一次轮询的错误，成功后清空
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Refresh 立即查询一次
func (m *Monitor) Refresh(ctx context.Context) State {
	st, err := m.reader.SimState(ctx)
	if err != nil {
		logger.Named("sim").Warn("查询 SIM 状态失败", logger.Err(err))
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return m.current()
	}
	m.set(st)
	return st
}

// ReportSimPinUnlocked PIN 校验成功后立刻标记为 READY，不等下一轮轮询
func (m *Monitor) ReportSimPinUnlocked() {
	m.set(StateReady)
}

func (m *Monitor) current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) set(st State) {
	m.mu.Lock()
	old := m.state
	m.state = st
	m.lastErr = nil
	listeners := slices.Clone(m.onChange)
	m.mu.Unlock()

	if old == st {
		return
	}
	logger.Named("sim").Info("SIM 状态变化", logger.Stringer("from", old), logger.Stringer("to", st))
	for _, fn := range listeners {
		fn(old, st)
	}
}

// Run 轮询直到 ctx 结束
func (m *Monitor) Run(ctx context.Context) {
	m.Refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}
