package keyguard

import (
	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
)

// WindowType 窗口层级
type WindowType int

const (
	TypeKeyguard WindowType = iota + 1
	TypeKeyguardDialog
)

// WindowFlags 窗口标志位
type WindowFlags uint32

const (
	FlagDither WindowFlags = 1 << iota
	FlagForceNotFullscreen
	FlagBlurBehind
)

// LayoutParams 锁屏宿主窗口的参数
type LayoutParams struct {
	Title      string
	Type       WindowType
	Flags      WindowFlags
	Opaque     bool
	FillParent bool
}

// KeyguardLayoutParams 锁屏宿主窗口的默认参数
func KeyguardLayoutParams() LayoutParams {
	return LayoutParams{
		Title:      "Keyguard",
		Type:       TypeKeyguard,
		Flags:      FlagDither | FlagForceNotFullscreen,
		Opaque:     true,
		FillParent: true,
	}
}

// Host 锁屏宿主容器 (窗口管理器侧)
// Attach 只在第一次 Show 时调用一次，Detach 只在 Close 时调用一次。
type Host interface {
	// Attach 创建并挂载宿主窗口；onDrawn 在宿主完成绘制时调用
	Attach(params LayoutParams, onDrawn func()) error
	Detach() error
	SetVisible(visible bool)
	Mount(s Screen)
	Unmount(s Screen)
	Focus(s Screen)
}

// LogHost 无界面的宿主，只记录日志；挂载后立即视为绘制完成
type LogHost struct {
	log *zap.Logger
}

func NewLogHost() *LogHost {
	return &LogHost{log: logger.Named("host")}
}

func (h *LogHost) Attach(params LayoutParams, onDrawn func()) error {
	h.log.Info("挂载锁屏窗口", logger.String("title", params.Title), logger.Uint32("flags", uint32(params.Flags)))
	if onDrawn != nil {
		onDrawn()
	}
	return nil
}

func (h *LogHost) Detach() error {
	h.log.Info("卸载锁屏窗口")
	return nil
}

func (h *LogHost) SetVisible(visible bool) {
	h.log.Debug("宿主可见性", logger.Bool("visible", visible))
}

func (h *LogHost) Mount(s Screen) {
	h.log.Debug("挂载界面", logger.String("screen", screenName(s)))
}

func (h *LogHost) Unmount(s Screen) {
	h.log.Debug("移除界面", logger.String("screen", screenName(s)))
}

func (h *LogHost) Focus(s Screen) {}
