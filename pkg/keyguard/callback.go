package keyguard

import "time"

// DigitPressWakeDuration 触摸拨号盘按键后保持亮屏的时间
const DigitPressWakeDuration = 5 * time.Second

// Callback 锁屏对外的通知出口，由电源管理 / 窗口策略实现
// Manager 总是在 looper 协程上、且不持有内部锁时调用这些方法。
type Callback interface {
	// KeyguardDone 用户完成认证 (authenticated=true) 或放弃
	KeyguardDone(authenticated bool)
	// PokeWakelock 因用户交互保持亮屏；d 为 0 时使用默认时长
	PokeWakelock(d time.Duration)
	// KeyguardDoneDrawing 锁屏首次绘制完成
	KeyguardDoneDrawing()
	TakeEmergencyCallAction()
	GoToUnlockScreen()
	GoToLockScreen()
	// RecreateMe 当前界面要求被销毁重建 (如键盘开合)
	RecreateMe()
}

// NopCallback 忽略所有通知
type NopCallback struct{}

func (NopCallback) KeyguardDone(bool)          {}
func (NopCallback) PokeWakelock(time.Duration) {}
func (NopCallback) KeyguardDoneDrawing()       {}
func (NopCallback) TakeEmergencyCallAction()   {}
func (NopCallback) GoToUnlockScreen()          {}
func (NopCallback) GoToLockScreen()            {}
func (NopCallback) RecreateMe()                {}

var _ Callback = NopCallback{}
