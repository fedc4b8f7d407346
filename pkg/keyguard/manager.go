// Package keyguard 管理锁屏的创建、显示、隐藏和重置。
//
// Manager 持有唯一的当前界面，通过 Callback 通知亮屏保持和认证结果；
// 界面发出的通知先回到 Manager 处理，再转发给外部。
package keyguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
	"github.com/iniwex5/keyguard-go/pkg/policy"
)

var (
	ErrClosed   = errors.New("keyguard closed")
	ErrNoScreen = errors.New("no active screen")
)

// State 锁屏状态
type State int

const (
	StateDetached State = iota
	StateHidden
	StateShowing
	StateVerifyingUnlock
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateHidden:
		return "hidden"
	case StateShowing:
		return "showing"
	case StateVerifyingUnlock:
		return "verifying-unlock"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Evaluator 给出当前安全因素、是否安全和应创建的界面 (*policy.Properties 实现)
type Evaluator interface {
	Evaluate(ctx context.Context) (policy.Factors, bool, policy.Variant)
}

// Snapshot Manager 的只读快照
type Snapshot struct {
	State     State
	Variant   policy.Variant
	Attached  bool
	Visible   bool
	ScreenOn  bool
	HasScreen bool
	Screen    ScreenStatus
}

// Manager 锁屏状态机
// 所有公开方法互斥；界面钩子都在持有 mu 时调用。
type Manager struct {
	ctx       context.Context
	host      Host
	factory   Factory
	evaluator Evaluator
	callback  Callback
	looper    *Looper
	log       *zap.Logger

	mu           sync.Mutex
	attached     bool
	visible      bool
	screen       Screen
	variant      policy.Variant
	gen          uint64
	screenOn     bool
	keyboardOpen bool
	closed       bool
}

// Config Manager 的依赖
type Config struct {
	Host      Host
	Factory   Factory
	Evaluator Evaluator
	Callback  Callback
	Looper    *Looper
}

func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Host == nil || cfg.Factory == nil || cfg.Evaluator == nil || cfg.Looper == nil {
		return nil, errors.New("keyguard: host, factory, evaluator and looper are required")
	}
	cb := cfg.Callback
	if cb == nil {
		cb = NopCallback{}
	}
	return &Manager{
		ctx:       ctx,
		host:      cfg.Host,
		factory:   cfg.Factory,
		evaluator: cfg.Evaluator,
		callback:  cb,
		looper:    cfg.Looper,
		log:       logger.Named("keyguard"),
	}, nil
}

// Show 显示锁屏，必要时挂载宿主并创建界面
// 已经在显示时只重新确认可见并聚焦，不会重复挂载或重建界面。
func (m *Manager) Show() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.showLocked()
}

func (m *Manager) showLocked() error {
	if !m.attached {
		m.log.Debug("宿主未挂载，创建中")
		if err := m.host.Attach(KeyguardLayoutParams(), m.onHostDrawn); err != nil {
			return fmt.Errorf("attach keyguard host: %w", err)
		}
		m.attached = true
	}

	if m.screen == nil {
		if err := m.createScreenLocked(); err != nil {
			return err
		}
	}

	m.host.SetVisible(true)
	m.visible = true
	m.host.Focus(m.screen)
	return nil
}

func (m *Manager) createScreenLocked() error {
	factors, secure, variant := m.evaluator.Evaluate(m.ctx)

	m.gen++
	gen := m.gen
	sc := &ScreenContext{
		Ctx:          m.ctx,
		Callback:     &screenCallback{m: m, gen: gen},
		Poster:       &screenPoster{m: m, gen: gen},
		Factors:      factors,
		Secure:       secure,
		KeyboardOpen: m.keyboardOpen,
	}
	s, err := m.factory.CreateScreen(variant, sc)
	if err != nil {
		return fmt.Errorf("create %s screen: %w", variant, err)
	}

	m.host.Mount(s)
	m.screen = s
	m.variant = variant
	m.log.Info("创建锁屏界面", logger.Stringer("variant", variant), logger.Bool("secure", secure),
		logger.Stringer("sim", factors.SimState))

	// 界面可能错过了亮屏事件
	if m.screenOn {
		s.OnScreenTurnedOn()
	}
	return nil
}

func (m *Manager) teardownLocked() {
	if m.screen == nil {
		return
	}
	s := m.screen
	m.screen = nil
	// 使旧界面的回调和投递全部失效
	m.gen++
	m.host.Unmount(s)
	s.CleanUp()
}

func (m *Manager) recreateLocked() error {
	m.teardownLocked()
	if !m.attached || !m.visible {
		return nil
	}
	if err := m.createScreenLocked(); err != nil {
		return err
	}
	m.host.Focus(m.screen)
	return nil
}

// Hide 隐藏锁屏并销毁当前界面；重复调用无副作用
func (m *Manager) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hideLocked()
}

func (m *Manager) hideLocked() {
	if !m.attached {
		return
	}
	if m.visible {
		m.host.SetVisible(false)
		m.visible = false
	}
	m.teardownLocked()
}

// Reset 把当前界面恢复到初始状态；没有界面时无操作
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != nil {
		m.screen.Reset()
	}
}

func (m *Manager) OnScreenTurnedOff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenOn = false
	if m.screen != nil {
		m.screen.OnScreenTurnedOff()
	}
}

func (m *Manager) OnScreenTurnedOn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenOn = true
	if m.screen != nil {
		m.screen.OnScreenTurnedOn()
	}
}

// VerifyUnlock 确保锁屏已显示，然后要求当前界面立即验证
func (m *Manager) VerifyUnlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.showLocked(); err != nil {
		return err
	}
	m.screen.VerifyUnlock()
	return nil
}

// WakeWhenReadyTq 某个按键唤醒了设备
// 调用方处在按键分发的关键路径上：这里只投递任务，不等待锁。
func (m *Manager) WakeWhenReadyTq(keyCode KeyCode) {
	m.looper.Post(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.screen != nil {
			m.screen.WakeWhenReadyTq(keyCode)
		}
	})
}

// OnKeyboardChange 键盘开合
func (m *Manager) OnKeyboardChange(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyboardOpen = open
	if l, ok := m.screen.(ConfigurationListener); ok {
		l.OnKeyboardChange(open)
	}
}

// DispatchKey 把硬件按键交给当前界面
func (m *Manager) DispatchKey(code KeyCode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.screen.(KeyHandler); ok {
		return h.OnKeyDown(code)
	}
	return false
}

// DispatchClick 把触摸按钮交给当前界面
func (m *Manager) DispatchClick(b Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.screen.(ClickHandler)
	if !ok {
		return ErrNoScreen
	}
	h.OnClick(b)
	return nil
}

// SubmitPattern 把绘制的图案交给当前界面
func (m *Manager) SubmitPattern(cells []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.screen.(PatternInput)
	if !ok {
		return ErrNoScreen
	}
	p.SubmitPattern(cells)
	return nil
}

// IsShowing 宿主已挂载且可见
func (m *Manager) IsShowing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached && m.visible
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	switch {
	case !m.attached:
		return StateDetached
	case !m.visible || m.screen == nil:
		return StateHidden
	}
	if r, ok := m.screen.(StatusReporter); ok && r.Status().Verifying {
		return StateVerifyingUnlock
	}
	return StateShowing
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{
		State:     m.stateLocked(),
		Attached:  m.attached,
		Visible:   m.visible,
		ScreenOn:  m.screenOn,
		HasScreen: m.screen != nil,
	}
	if m.screen != nil {
		out.Variant = m.variant
		if r, ok := m.screen.(StatusReporter); ok {
			out.Screen = r.Status()
		}
	}
	return out
}

// Close 隐藏并卸载宿主；之后 Show 返回 ErrClosed
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.hideLocked()
	if !m.attached {
		return nil
	}
	m.attached = false
	return m.host.Detach()
}

func (m *Manager) onHostDrawn() {
	m.looper.Post(m.callback.KeyguardDoneDrawing)
}

// route 在 looper 上处理界面 gen 发出的通知：先在锁内更新状态，再在锁外转发
// 界面已被销毁时整个通知被丢弃。
func (m *Manager) route(gen uint64, name string, handle func() func(Callback)) {
	m.looper.Post(func() {
		m.mu.Lock()
		if m.gen != gen || m.screen == nil {
			m.mu.Unlock()
			m.log.Debug("丢弃已销毁界面的通知", logger.String("event", name))
			return
		}
		forward := handle()
		m.mu.Unlock()

		if forward != nil {
			forward(m.callback)
		}
	})
}

// screenCallback 每个界面实例一个
type screenCallback struct {
	m   *Manager
	gen uint64
}

func (c *screenCallback) KeyguardDone(authenticated bool) {
	m := c.m
	m.route(c.gen, "keyguardDone", func() func(Callback) {
		if authenticated {
			m.hideLocked()
		}
		return func(cb Callback) { cb.KeyguardDone(authenticated) }
	})
}

func (c *screenCallback) PokeWakelock(d time.Duration) {
	c.m.route(c.gen, "pokeWakelock", func() func(Callback) {
		return func(cb Callback) { cb.PokeWakelock(d) }
	})
}

func (c *screenCallback) KeyguardDoneDrawing() {
	c.m.route(c.gen, "keyguardDoneDrawing", func() func(Callback) {
		return Callback.KeyguardDoneDrawing
	})
}

func (c *screenCallback) TakeEmergencyCallAction() {
	c.m.route(c.gen, "takeEmergencyCallAction", func() func(Callback) {
		return Callback.TakeEmergencyCallAction
	})
}

// GoToUnlockScreen 重新评估安全因素：已不安全则直接完成认证，否则按新的因素重建界面
func (c *screenCallback) GoToUnlockScreen() {
	m := c.m
	m.route(c.gen, "goToUnlockScreen", func() func(Callback) {
		_, secure, _ := m.evaluator.Evaluate(m.ctx)
		if !secure {
			m.hideLocked()
			return func(cb Callback) { cb.KeyguardDone(true) }
		}
		if err := m.recreateLocked(); err != nil {
			m.log.Error("重建锁屏界面失败", logger.Err(err))
		}
		return Callback.GoToUnlockScreen
	})
}

func (c *screenCallback) GoToLockScreen() {
	m := c.m
	m.route(c.gen, "goToLockScreen", func() func(Callback) {
		m.screen.Reset()
		return Callback.GoToLockScreen
	})
}

func (c *screenCallback) RecreateMe() {
	m := c.m
	m.route(c.gen, "recreateMe", func() func(Callback) {
		if err := m.recreateLocked(); err != nil {
			m.log.Error("重建锁屏界面失败", logger.Err(err))
		}
		return Callback.RecreateMe
	})
}

// screenPoster 把任务投递回 owner 上下文，界面销毁后丢弃
type screenPoster struct {
	m   *Manager
	gen uint64
}

func (p *screenPoster) Post(fn func()) bool {
	m := p.m
	return m.looper.Post(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != p.gen {
			return
		}
		fn()
	})
}
