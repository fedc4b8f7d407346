package keyguard

import (
	"context"
	"fmt"

	"github.com/iniwex5/keyguard-go/pkg/pin"
	"github.com/iniwex5/keyguard-go/pkg/policy"
)

// Screen 一个具体的认证界面
// 所有钩子都在 owner 上下文中调用，可以被调用任意多次 (包括从未调用过其他钩子时)。
type Screen interface {
	OnScreenTurnedOn()
	OnScreenTurnedOff()
	// Reset 恢复到初始输入状态，不销毁界面
	Reset()
	// CleanUp 界面被移除前调用，之后界面不再收到任何调用
	CleanUp()
	// WakeWhenReadyTq 按键唤醒了设备；不能做耗时操作
	WakeWhenReadyTq(keyCode KeyCode)
	// VerifyUnlock 立即要求用户验证 (外部触发的解锁)
	VerifyUnlock()
}

// ScreenStatus 界面当前的可观察状态
type ScreenStatus struct {
	Header    string
	Entered   int
	Masked    string // 输入框显示内容
	Verifying bool
}

// StatusReporter 可选：界面对外报告状态
type StatusReporter interface {
	Status() ScreenStatus
}

// KeyHandler 可选：处理硬件按键
type KeyHandler interface {
	OnKeyDown(code KeyCode) bool
}

// ClickHandler 可选：处理触摸按钮
type ClickHandler interface {
	OnClick(b Button)
}

// PatternInput 可选：接收绘制的图案
type PatternInput interface {
	SubmitPattern(cells []int)
}

// ConfigurationListener 可选：键盘开合
type ConfigurationListener interface {
	OnKeyboardChange(open bool)
}

// ScreenContext 创建界面时由 Manager 提供
type ScreenContext struct {
	Ctx context.Context
	// Callback 按界面实例隔离；界面被销毁后发出的通知会被丢弃
	Callback Callback
	// Poster 把任务投递回 owner 上下文 (持有 Manager 锁执行)，界面销毁后任务被丢弃
	Poster pin.Poster

	Factors      policy.Factors
	Secure       bool
	KeyboardOpen bool
}

// Factory 根据界面类型创建界面
type Factory interface {
	CreateScreen(variant policy.Variant, sc *ScreenContext) (Screen, error)
}

// FactoryFunc 函数适配器
type FactoryFunc func(variant policy.Variant, sc *ScreenContext) (Screen, error)

func (f FactoryFunc) CreateScreen(variant policy.Variant, sc *ScreenContext) (Screen, error) {
	return f(variant, sc)
}

// KeyCode 硬件按键码
type KeyCode int

const (
	KeyBack  KeyCode = 4
	Key0     KeyCode = 7
	Key9     KeyCode = 16
	KeyPower KeyCode = 26
	KeyEnter KeyCode = 66
	KeyDel   KeyCode = 67
	KeyMenu  KeyCode = 82
)

// KeyForDigit 数字对应的按键码
func KeyForDigit(d int) KeyCode {
	return Key0 + KeyCode(d)
}

// Digit 按键是否为数字键
func (k KeyCode) Digit() (int, bool) {
	if k >= Key0 && k <= Key9 {
		return int(k - Key0), true
	}
	return 0, false
}

// Button 触摸按钮；0-9 为拨号盘数字
type Button int

const (
	ButtonCancel Button = iota + 10
	ButtonBackspace
	ButtonEmergency
	ButtonOK
)

// DigitButton 拨号盘上的数字按钮
func DigitButton(d int) Button {
	return Button(d)
}

func (b Button) Digit() (int, bool) {
	if b >= 0 && b <= 9 {
		return int(b), true
	}
	return 0, false
}

func screenName(s Screen) string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", s)
}
