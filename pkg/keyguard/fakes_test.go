package keyguard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iniwex5/keyguard-go/pkg/policy"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

type fakeHost struct {
	attached  int
	detached  int
	visible   []bool
	mounted   []Screen
	unmounted []Screen
	focused   int
	drawOnce  bool
}

func (h *fakeHost) Attach(params LayoutParams, onDrawn func()) error {
	h.attached++
	if h.drawOnce && onDrawn != nil {
		onDrawn()
	}
	return nil
}

func (h *fakeHost) Detach() error {
	h.detached++
	return nil
}

func (h *fakeHost) SetVisible(v bool) { h.visible = append(h.visible, v) }
func (h *fakeHost) Mount(s Screen)    { h.mounted = append(h.mounted, s) }
func (h *fakeHost) Unmount(s Screen)  { h.unmounted = append(h.unmounted, s) }
func (h *fakeHost) Focus(s Screen)    { h.focused++ }

type fakeScreen struct {
	on, off, resets, cleanups, verifies int
	wakes                               []KeyCode
}

func (s *fakeScreen) OnScreenTurnedOn()            { s.on++ }
func (s *fakeScreen) OnScreenTurnedOff()           { s.off++ }
func (s *fakeScreen) Reset()                       { s.resets++ }
func (s *fakeScreen) CleanUp()                     { s.cleanups++ }
func (s *fakeScreen) WakeWhenReadyTq(code KeyCode) { s.wakes = append(s.wakes, code) }
func (s *fakeScreen) VerifyUnlock()                { s.verifies++ }

// fakeFactory 记录创建的界面和对应的 ScreenContext
type fakeFactory struct {
	screens  []*fakeScreen
	contexts []*ScreenContext
	variants []policy.Variant
}

func (f *fakeFactory) CreateScreen(v policy.Variant, sc *ScreenContext) (Screen, error) {
	s := &fakeScreen{}
	f.screens = append(f.screens, s)
	f.contexts = append(f.contexts, sc)
	f.variants = append(f.variants, v)
	return s, nil
}

type fakeEvaluator struct {
	mu      sync.Mutex
	factors policy.Factors
}

func (e *fakeEvaluator) set(f policy.Factors) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factors = f
}

func (e *fakeEvaluator) Evaluate(ctx context.Context) (policy.Factors, bool, policy.Variant) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.factors, policy.IsSecure(e.factors), policy.Select(e.factors)
}

// recordingCallback 记录外部收到的通知
type recordingCallback struct {
	mu     sync.Mutex
	events []string
	onDone func(bool)
}

func (c *recordingCallback) add(ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *recordingCallback) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func (c *recordingCallback) Has(ev string) bool {
	for _, e := range c.Events() {
		if e == ev {
			return true
		}
	}
	return false
}

func (c *recordingCallback) KeyguardDone(ok bool) {
	c.add(fmt.Sprintf("done:%v", ok))
	if c.onDone != nil {
		c.onDone(ok)
	}
}
func (c *recordingCallback) PokeWakelock(d time.Duration) { c.add(fmt.Sprintf("poke:%s", d)) }
func (c *recordingCallback) KeyguardDoneDrawing()         { c.add("drawn") }
func (c *recordingCallback) TakeEmergencyCallAction()     { c.add("emergency") }
func (c *recordingCallback) GoToUnlockScreen()            { c.add("unlock-screen") }
func (c *recordingCallback) GoToLockScreen()              { c.add("lock-screen") }
func (c *recordingCallback) RecreateMe()                  { c.add("recreate") }

type gatedSupplier struct {
	calls   atomic.Int32
	release chan struct{}
	sim     sim.PinSupplier
}

func newGatedSupplier(inner sim.PinSupplier) *gatedSupplier {
	return &gatedSupplier{release: make(chan struct{}), sim: inner}
}

func (s *gatedSupplier) SupplyPin(ctx context.Context, pin string) (bool, error) {
	s.calls.Add(1)
	<-s.release
	return s.sim.SupplyPin(ctx, pin)
}

type countingProgress struct {
	shows, hides atomic.Int32
}

func (p *countingProgress) Show() { p.shows.Add(1) }
func (p *countingProgress) Hide() { p.hides.Add(1) }

func newTestManager(t *testing.T, host Host, factory Factory, eval Evaluator, cb Callback) (*Manager, *Looper) {
	t.Helper()
	l := NewLooper().Start()
	t.Cleanup(l.Stop)
	m, err := NewManager(context.Background(), Config{
		Host:      host,
		Factory:   factory,
		Evaluator: eval,
		Callback:  cb,
		Looper:    l,
	})
	require.NoError(t, err)
	return m, l
}

func flush(t *testing.T, l *Looper) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Flush(ctx))
}
