package daemon

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/iniwex5/keyguard-go/pkg/config"
	"github.com/iniwex5/keyguard-go/pkg/keyguard"
	"github.com/iniwex5/keyguard-go/pkg/policy"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

func newTestDaemon(t *testing.T, soft *sim.SoftSIM, mutate func(*config.Config)) *Daemon {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	d, err := New(context.Background(), cfg, Options{SIM: soft})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonSimPinUnlock(t *testing.T) {
	soft := sim.NewSoftSIM("001010123456789", "1234", "")
	d := newTestDaemon(t, soft, nil)
	m := d.Manager()

	require.NoError(t, m.Show())
	require.Equal(t, policy.VariantSimPin, m.Snapshot().Variant)

	_, err := d.console.Exec("1234")
	require.NoError(t, err)
	_, err = d.console.Exec("enter")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !m.IsShowing() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return d.callback.Unlocks() == 1 }, time.Second, 5*time.Millisecond)

	// 校验成功后缓存立即变为 READY
	st, err := d.monitor.SimState(context.Background())
	require.NoError(t, err)
	require.Equal(t, sim.StateReady, st)
}

func TestDaemonShowsKeyguardWhenSimLocks(t *testing.T) {
	soft := sim.NewSoftSIM("001010123456789", "", "")
	d := newTestDaemon(t, soft, nil)
	m := d.Manager()
	require.False(t, m.IsShowing())

	soft.SetState(sim.StatePinRequired)
	d.monitor.Refresh(context.Background())

	require.Eventually(t, m.IsShowing, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, policy.VariantSimPin, m.Snapshot().Variant)
}

func TestDaemonRunConsole(t *testing.T) {
	soft := sim.NewSoftSIM("001010123456789", "1234", "")
	d := newTestDaemon(t, soft, nil)

	in := strings.NewReader("status\nbogus\n\nquit\nstatus\n")
	var out bytes.Buffer
	require.NoError(t, d.Run(context.Background(), in, &out))

	text := out.String()
	require.Contains(t, text, "state=showing")
	require.Contains(t, text, `header="Enter PIN code"`)
	require.Contains(t, text, "secure=true")
	require.Contains(t, text, "error: unknown command: bogus")
	// quit 之后的命令不再执行
	require.Equal(t, 1, strings.Count(text, "state="))
}

// closeTracker 记录 Close 调用的输入流
type closeTracker struct {
	*io.PipeReader
	closed chan struct{}
}

func (c *closeTracker) Close() error {
	close(c.closed)
	return c.PipeReader.Close()
}

func runAsync(ctx context.Context, d *Daemon, in io.Reader, out io.Writer) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, in, out) }()
	return done
}

func requireReturns(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	soft := sim.NewSoftSIM("001010123456789", "", "")
	d := newTestDaemon(t, soft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()
	in := &closeTracker{PipeReader: pr, closed: make(chan struct{})}

	done := runAsync(ctx, d, in, &bytes.Buffer{})
	require.Eventually(t, d.Manager().IsShowing, time.Second, 5*time.Millisecond)
	cancel()
	requireReturns(t, done)

	// 阻塞在读取上的协程随输入关闭退出
	select {
	case <-in.closed:
	case <-time.After(time.Second):
		t.Fatal("input not closed after Run returned")
	}
}

func TestDaemonRunReturnsOnQuitAndEOF(t *testing.T) {
	for name, input := range map[string]string{
		"quit": "status\nquit\n",
		"eof":  "status\n",
	} {
		t.Run(name, func(t *testing.T) {
			d := newTestDaemon(t, sim.NewSoftSIM("001010123456789", "1234", ""), nil)
			var out bytes.Buffer
			requireReturns(t, runAsync(context.Background(), d, strings.NewReader(input), &out))
		})
	}
}

func TestDaemonCloseIsIdempotent(t *testing.T) {
	soft := sim.NewSoftSIM("001010123456789", "1234", "")
	d := newTestDaemon(t, soft, nil)
	require.NoError(t, d.Manager().Show())

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.Equal(t, keyguard.StateDetached, d.Manager().State())
	require.ErrorIs(t, d.Manager().Show(), keyguard.ErrClosed)
}

func TestDaemonKeyboardOpenFromConfig(t *testing.T) {
	soft := sim.NewSoftSIM("001010123456789", "1234", "")
	d := newTestDaemon(t, soft, func(c *config.Config) { c.Screen.KeyboardOpen = true })
	m := d.Manager()
	require.NoError(t, m.Show())

	// 键盘打开时创建的界面没有触摸拨号盘
	_, err := d.console.Exec("tap 12")
	require.NoError(t, err)
	require.Equal(t, 0, m.Snapshot().Screen.Entered)
}

func TestOpenSIM(t *testing.T) {
	p, err := OpenSIM(config.SIM{Driver: config.DriverSoft, Soft: config.SoftSIM{IMSI: "1", Absent: true}})
	require.NoError(t, err)
	st, err := p.SimState(context.Background())
	require.NoError(t, err)
	require.Equal(t, sim.StateAbsent, st)

	_, err = OpenSIM(config.SIM{Driver: "pcsc"})
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	cfg := config.Default()
	cfg.Lock = config.Lock{PatternEnabled: true, PatternSaved: true, Pattern: []int{0, 1, 2}}
	soft := sim.NewSoftSIM("001010123456789", "1234", "")

	r, err := Inspect(context.Background(), cfg, soft)
	require.NoError(t, err)
	require.Equal(t, sim.StatePinRequired, r.Factors.SimState)
	require.True(t, r.Secure)
	require.Equal(t, policy.VariantSimPin, r.Variant)
	require.Equal(t, "001010123456789", r.IMSI)
	require.Contains(t, r.String(), "screen:   sim-pin")

	soft.FailNext(errors.New("tty gone"))
	r, err = Inspect(context.Background(), cfg, soft)
	require.NoError(t, err)
	require.Error(t, r.SimErr)
	require.Equal(t, sim.StateUnknown, r.Factors.SimState)
	// 图案锁仍然生效
	require.True(t, r.Secure)
	require.Equal(t, policy.VariantPattern, r.Variant)
}

func TestInspectFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SIM.Soft.PIN = "1234"
	r, err := Inspect(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, sim.StatePinRequired, r.Factors.SimState)
}

func TestUndoStackOrderAndErrors(t *testing.T) {
	var order []int
	var u undoStack
	u.push(func() error { order = append(order, 1); return errors.New("first") })
	u.push(func() error { order = append(order, 2); return nil })
	u.push(func() error { order = append(order, 3); return errors.New("third") })

	err := u.rollback()
	require.Equal(t, []int{3, 2, 1}, order)
	require.Len(t, multierr.Errors(err), 2)

	// 已回滚的栈再次回滚无操作
	require.NoError(t, u.rollback())

	u.push(func() error { return errors.New("never") })
	u.commit()
	require.NoError(t, u.rollback())
}

func TestWakeCallbackDeadline(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newWakeCallback()
	c.now = func() time.Time { return now }

	c.PokeWakelock(0)
	require.Equal(t, now.Add(DefaultWakeDuration), c.AwakeUntil())

	// 较短的请求不会缩短已有的截止时间
	c.PokeWakelock(keyguard.DigitPressWakeDuration)
	require.Equal(t, now.Add(DefaultWakeDuration), c.AwakeUntil())

	c.KeyguardDone(false)
	c.KeyguardDone(true)
	require.Equal(t, 1, c.Unlocks())
}
