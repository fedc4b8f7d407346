// Package daemon 把配置、SIM 后端、安全策略和锁屏管理器组装成 keyguardd 进程
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/config"
	"github.com/iniwex5/keyguard-go/pkg/events"
	"github.com/iniwex5/keyguard-go/pkg/keyguard"
	"github.com/iniwex5/keyguard-go/pkg/logger"
	"github.com/iniwex5/keyguard-go/pkg/policy"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

// Options 可替换的依赖 (测试用)；为空时按配置创建
type Options struct {
	SIM  sim.Provider
	Host keyguard.Host
}

type Daemon struct {
	cfg      *config.Config
	sim      sim.Provider
	monitor  *sim.Monitor
	props    *policy.Properties
	looper   *keyguard.Looper
	manager  *keyguard.Manager
	callback *wakeCallback
	console  *Console
	log      *zap.Logger

	mu      sync.Mutex
	cleanup undoStack
	closed  bool
}

// OpenSIM 按配置创建 SIM 后端
func OpenSIM(cfg config.SIM) (sim.Provider, error) {
	switch cfg.Driver {
	case config.DriverModem:
		s, err := sim.NewDirectSIM(cfg.Device, cfg.Baud, cfg.ATTimeout.Duration)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSoft:
		s := sim.NewSoftSIM(cfg.Soft.IMSI, cfg.Soft.PIN, cfg.Soft.PUK)
		if cfg.Soft.Absent {
			s.SetState(sim.StateAbsent)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported sim driver %q", cfg.Driver)
	}
}

func lockSettings(cfg config.Lock) policy.StaticSettings {
	return policy.StaticSettings{
		Enabled: cfg.PatternEnabled,
		Saved:   cfg.PatternSaved,
		Pattern: cfg.Pattern,
	}
}

// New 创建各组件；任何一步失败都会释放之前创建的资源
func New(ctx context.Context, cfg *config.Config, opts Options) (d *Daemon, err error) {
	var undo undoStack
	defer func() {
		if err != nil {
			if rbErr := undo.rollback(); rbErr != nil {
				logger.Warn("释放资源失败", logger.Err(rbErr))
			}
		}
	}()

	provider := opts.SIM
	if provider == nil {
		if provider, err = OpenSIM(cfg.SIM); err != nil {
			return nil, fmt.Errorf("open sim: %w", err)
		}
	}
	undo.push(provider.Close)

	monitor := sim.NewMonitor(provider, cfg.SIM.PollInterval.Duration)
	monitor.Refresh(ctx)

	settings := lockSettings(cfg.Lock)
	props := policy.NewProperties(settings, monitor)

	looper := keyguard.NewLooper().Start()
	undo.push(func() error {
		looper.Stop()
		return nil
	})

	host := opts.Host
	if host == nil {
		host = keyguard.NewLogHost()
	}
	cb := newWakeCallback()
	manager, err := keyguard.NewManager(ctx, keyguard.Config{
		Host: host,
		Factory: &keyguard.DefaultFactory{
			Supplier:      provider,
			Patterns:      settings,
			NewProgress:   newLogProgress,
			OnSimUnlocked: monitor.ReportSimPinUnlocked,
		},
		Evaluator: props,
		Callback:  cb,
		Looper:    looper,
	})
	if err != nil {
		return nil, err
	}
	undo.push(manager.Close)
	if cfg.Screen.KeyboardOpen {
		manager.OnKeyboardChange(true)
	}

	d = &Daemon{
		cfg:      cfg,
		sim:      provider,
		monitor:  monitor,
		props:    props,
		looper:   looper,
		manager:  manager,
		callback: cb,
		log:      logger.Named("daemon"),
	}
	d.console = NewConsole(manager, d.Status)
	monitor.OnChange(d.onSimStateChanged)

	d.cleanup = undo
	undo.commit()
	return d, nil
}

// onSimStateChanged 在轮询协程中被调用，转到 looper 上处理
// SIM 进入需要 PIN/PUK 或被拔出时确保锁屏显示。
func (d *Daemon) onSimStateChanged(old, cur sim.State) {
	d.looper.Post(func() {
		switch cur {
		case sim.StateAbsent, sim.StatePinRequired, sim.StatePukRequired:
		default:
			return
		}
		if d.manager.IsShowing() {
			d.manager.Reset()
			return
		}
		if err := d.manager.Show(); err != nil && !errors.Is(err, keyguard.ErrClosed) {
			d.log.Warn("SIM 状态变化后显示锁屏失败", logger.Err(err))
		}
	})
}

func (d *Daemon) Manager() *keyguard.Manager {
	return d.manager
}

// Run 显示锁屏并处理 in 中的控制台命令，直到 ctx 取消或输入结束
// Run 返回时若 in 实现了 io.Closer 会被关闭以结束读取协程；
// 关闭无法中断的读取会让该协程保留到下一行输入或 EOF。
func (d *Daemon) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.monitor.Run(ctx)
	}()

	if d.cfg.Events.Logind {
		w, err := events.ConnectLogind(d.manager)
		if err != nil {
			d.log.Warn("无法订阅 logind 信号", logger.Err(err))
		} else {
			d.deferClose(w.Close)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					d.log.Warn("logind 监听退出", logger.Err(err))
				}
			}()
		}
	}

	// 设备启动时处于锁定状态
	if err := d.manager.Show(); err != nil {
		return fmt.Errorf("show keyguard: %w", err)
	}
	d.log.Info("keyguardd 已启动", logger.Stringer("sim", d.currentSimState(ctx)))

	if c, ok := in.(io.Closer); ok {
		context.AfterFunc(ctx, func() { _ = c.Close() })
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "quit" {
				return nil
			}
			resp, err := d.console.Exec(line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if resp != "" {
				fmt.Fprintln(out, resp)
			}
		}
	}
}

func (d *Daemon) currentSimState(ctx context.Context) sim.State {
	st, _ := d.monitor.SimState(ctx)
	return st
}

// Status 管理器快照加上亮屏保持信息
func (d *Daemon) Status() string {
	snap := d.manager.Snapshot()
	var b strings.Builder
	b.WriteString(FormatSnapshot(snap))
	ctx := context.Background()
	fmt.Fprintf(&b, " sim=%s secure=%t unlocks=%d", d.currentSimState(ctx), d.props.IsSecure(ctx), d.callback.Unlocks())
	if until := d.callback.AwakeUntil(); !until.IsZero() {
		fmt.Fprintf(&b, " awake_until=%s", until.Format("15:04:05"))
	}
	return b.String()
}

func (d *Daemon) deferClose(fn func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanup.push(fn)
}

// Close 按创建的相反顺序释放所有资源
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.cleanup.rollback()
}

// FormatSnapshot 单行状态文本
func FormatSnapshot(s keyguard.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s screen_on=%t", s.State, s.ScreenOn)
	if s.HasScreen {
		fmt.Fprintf(&b, " variant=%s header=%q entered=%d pin=%q verifying=%t",
			s.Variant, s.Screen.Header, s.Screen.Entered, s.Screen.Masked, s.Screen.Verifying)
	}
	return b.String()
}

// logProgress 校验进度只写日志
type logProgress struct {
	log *zap.Logger
}

func newLogProgress() keyguard.Progress {
	return &logProgress{log: logger.Named("progress")}
}

func (p *logProgress) Show() { p.log.Info("正在校验 SIM PIN") }
func (p *logProgress) Hide() { p.log.Debug("校验结束") }
