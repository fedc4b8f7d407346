// Package events 把 systemd-logind 的系统信号转换为锁屏操作
package events

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
)

const (
	logindManagerIface = "org.freedesktop.login1.Manager"
	logindSessionIface = "org.freedesktop.login1.Session"

	signalPrepareForSleep = logindManagerIface + ".PrepareForSleep"
	signalLock            = logindSessionIface + ".Lock"
	signalUnlock          = logindSessionIface + ".Unlock"
)

// Kind 系统事件类型
type Kind int

const (
	KindSleep Kind = iota + 1
	KindResume
	KindLock
	KindUnlock
)

func (k Kind) String() string {
	switch k {
	case KindSleep:
		return "sleep"
	case KindResume:
		return "resume"
	case KindLock:
		return "lock"
	case KindUnlock:
		return "unlock"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sink 事件的接收方 (*keyguard.Manager 实现)
type Sink interface {
	Show() error
	VerifyUnlock() error
	OnScreenTurnedOn()
	OnScreenTurnedOff()
}

// Translate 把 D-Bus 信号映射为事件；无关信号返回 false
func Translate(sig *dbus.Signal) (Kind, bool) {
	if sig == nil {
		return 0, false
	}
	switch sig.Name {
	case signalPrepareForSleep:
		if len(sig.Body) != 1 {
			return 0, false
		}
		start, ok := sig.Body[0].(bool)
		if !ok {
			return 0, false
		}
		if start {
			return KindSleep, true
		}
		return KindResume, true
	case signalLock:
		return KindLock, true
	case signalUnlock:
		return KindUnlock, true
	}
	return 0, false
}

// Apply 把事件作用到 sink
// 休眠前先灭屏再显示锁屏，唤醒时只转发亮屏。
func Apply(sink Sink, k Kind) error {
	switch k {
	case KindSleep:
		sink.OnScreenTurnedOff()
		return sink.Show()
	case KindResume:
		sink.OnScreenTurnedOn()
	case KindLock:
		return sink.Show()
	case KindUnlock:
		return sink.VerifyUnlock()
	default:
		return fmt.Errorf("unknown event %s", k)
	}
	return nil
}

// LogindWatcher 订阅 logind 信号
type LogindWatcher struct {
	conn *dbus.Conn
	sink Sink
	log  *zap.Logger
}

func NewLogindWatcher(conn *dbus.Conn, sink Sink) *LogindWatcher {
	return &LogindWatcher{
		conn: conn,
		sink: sink,
		log:  logger.Named("logind"),
	}
}

// ConnectLogind 连接系统总线并创建 watcher
func ConnectLogind(sink Sink) (*LogindWatcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return NewLogindWatcher(conn, sink), nil
}

// Run 阻塞直到 ctx 取消或连接关闭
func (w *LogindWatcher) Run(ctx context.Context) error {
	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(logindManagerIface), dbus.WithMatchMember("PrepareForSleep")},
		{dbus.WithMatchInterface(logindSessionIface), dbus.WithMatchMember("Lock")},
		{dbus.WithMatchInterface(logindSessionIface), dbus.WithMatchMember("Unlock")},
	}
	for _, m := range matches {
		if err := w.conn.AddMatchSignal(m...); err != nil {
			return fmt.Errorf("add match: %w", err)
		}
	}

	ch := make(chan *dbus.Signal, 16)
	w.conn.Signal(ch)
	defer w.conn.RemoveSignal(ch)

	w.log.Info("开始监听 logind 信号")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			w.handle(sig)
		}
	}
}

func (w *LogindWatcher) handle(sig *dbus.Signal) {
	k, ok := Translate(sig)
	if !ok {
		return
	}
	w.log.Debug("收到 logind 事件", logger.Stringer("event", k), logger.String("path", string(sig.Path)))
	if err := Apply(w.sink, k); err != nil {
		w.log.Warn("处理 logind 事件失败", logger.Stringer("event", k), logger.Err(err))
	}
}

func (w *LogindWatcher) Close() error {
	return w.conn.Close()
}
