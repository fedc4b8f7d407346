package keyguard

import (
	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
	"github.com/iniwex5/keyguard-go/pkg/pin"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

// 界面提示文字
const (
	HeaderEnterPin   = "Enter PIN code"
	HeaderInvalidPin = "Invalid PIN: type 4 to 8 numbers"
	HeaderWrongPin   = "Incorrect PIN code"
)

// Progress 校验期间的进度提示 (外部实现)
type Progress interface {
	Show()
	Hide()
}

type nopProgress struct{}

func (nopProgress) Show() {}
func (nopProgress) Hide() {}

// SimUnlockScreen 拨号盘式的 SIM PIN 解锁界面
type SimUnlockScreen struct {
	cb       Callback
	verifier *pin.Verifier
	progress Progress
	log      *zap.Logger

	onSimUnlocked func()

	createdWithKeyboardOpen bool

	buf          pin.Buffer
	header       string
	progressOpen bool
}

func NewSimUnlockScreen(sc *ScreenContext, supplier sim.PinSupplier, progress Progress, onSimUnlocked func()) *SimUnlockScreen {
	if progress == nil {
		progress = nopProgress{}
	}
	return &SimUnlockScreen{
		cb:                      sc.Callback,
		verifier:                pin.NewVerifier(sc.Ctx, supplier, sc.Poster),
		progress:                progress,
		log:                     logger.Named("simpin"),
		onSimUnlocked:           onSimUnlocked,
		createdWithKeyboardOpen: sc.KeyboardOpen,
		header:                  HeaderEnterPin,
	}
}

func (s *SimUnlockScreen) OnPause() {}

// OnResume 重新开始输入
func (s *SimUnlockScreen) OnResume() {
	s.header = HeaderEnterPin
	s.buf.Reset()
}

func (s *SimUnlockScreen) OnScreenTurnedOn()  { s.OnResume() }
func (s *SimUnlockScreen) OnScreenTurnedOff() { s.OnPause() }
func (s *SimUnlockScreen) Reset()             { s.OnResume() }

// CleanUp 让在途校验的结果失效，并关闭残留的进度提示
func (s *SimUnlockScreen) CleanUp() {
	s.verifier.Invalidate()
	s.hideProgress()
	s.buf.Reset()
}

func (s *SimUnlockScreen) WakeWhenReadyTq(keyCode KeyCode) {
	s.cb.PokeWakelock(0)
}

// VerifyUnlock SIM PIN 界面不支持"仅验证"模式
func (s *SimUnlockScreen) VerifyUnlock() {
	s.cb.KeyguardDone(false)
}

func (s *SimUnlockScreen) Status() ScreenStatus {
	return ScreenStatus{
		Header:    s.header,
		Entered:   s.buf.Len(),
		Masked:    s.buf.Masked(),
		Verifying: s.verifier.Pending(),
	}
}

// Entered 当前输入 (测试和调试用)
func (s *SimUnlockScreen) Entered() string {
	return s.buf.String()
}

func (s *SimUnlockScreen) OnKeyDown(code KeyCode) bool {
	if code == KeyBack {
		s.cb.GoToLockScreen()
		return true
	}
	if d, ok := code.Digit(); ok {
		s.reportDigit(d)
		return true
	}
	switch code {
	case KeyDel:
		s.buf.Backspace()
		return true
	case KeyEnter:
		s.checkPin()
		return true
	}
	return false
}

// OnClick 触摸按钮；拨号盘只在创建时键盘收起的情况下存在
func (s *SimUnlockScreen) OnClick(b Button) {
	switch b {
	case ButtonBackspace:
		s.buf.Backspace()
		s.cb.PokeWakelock(0)
		return
	case ButtonEmergency:
		s.cb.TakeEmergencyCallAction()
		return
	case ButtonOK:
		s.checkPin()
		return
	}

	if s.createdWithKeyboardOpen {
		return
	}
	if b == ButtonCancel {
		s.cb.GoToLockScreen()
		return
	}
	if d, ok := b.Digit(); ok {
		s.cb.PokeWakelock(DigitPressWakeDuration)
		s.reportDigit(d)
	}
}

func (s *SimUnlockScreen) OnKeyboardChange(open bool) {
	if open != s.createdWithKeyboardOpen {
		s.cb.RecreateMe()
	}
}

func (s *SimUnlockScreen) reportDigit(d int) {
	// 满 8 位后静默忽略
	_ = s.buf.AppendDigit(d)
}

func (s *SimUnlockScreen) checkPin() {
	if !s.buf.Submittable() {
		s.header = HeaderInvalidPin
		s.buf.Reset()
		s.cb.PokeWakelock(0)
		return
	}
	if err := s.verifier.Submit(s.buf.String(), s.onSimLockChangedResponse); err != nil {
		// 已有在途校验或界面已失效
		s.log.Debug("忽略重复提交", logger.Err(err))
		return
	}
	s.showProgress()
}

func (s *SimUnlockScreen) onSimLockChangedResponse(ok bool) {
	s.hideProgress()
	if ok {
		// 先报告 SIM 已解锁，再离开锁屏，避免策略读到旧状态
		if s.onSimUnlocked != nil {
			s.onSimUnlocked()
		}
		s.cb.GoToUnlockScreen()
		return
	}
	s.header = HeaderWrongPin
	s.buf.Reset()
	s.cb.PokeWakelock(0)
}

func (s *SimUnlockScreen) showProgress() {
	s.progressOpen = true
	s.progress.Show()
}

func (s *SimUnlockScreen) hideProgress() {
	if !s.progressOpen {
		return
	}
	s.progressOpen = false
	s.progress.Hide()
}
