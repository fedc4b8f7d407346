package keyguard

import "github.com/iniwex5/keyguard-go/pkg/policy"

const (
	HeaderDrawPattern  = "Draw pattern to unlock"
	HeaderWrongPattern = "Wrong pattern"
	HeaderSlideUnlock  = "Press menu to unlock"
)

// PatternScreen 图案解锁界面
// 没有设置图案时 (不安全) 任意解锁动作都直接完成认证。
type PatternScreen struct {
	cb      Callback
	checker policy.PatternChecker
	secure  bool

	header   string
	failures int
}

func NewPatternScreen(sc *ScreenContext, checker policy.PatternChecker) *PatternScreen {
	s := &PatternScreen{
		cb:      sc.Callback,
		checker: checker,
		secure:  sc.Secure,
	}
	s.Reset()
	return s
}

func (s *PatternScreen) Reset() {
	if s.secure {
		s.header = HeaderDrawPattern
	} else {
		s.header = HeaderSlideUnlock
	}
}

func (s *PatternScreen) OnScreenTurnedOn()  { s.Reset() }
func (s *PatternScreen) OnScreenTurnedOff() {}
func (s *PatternScreen) CleanUp()           {}

func (s *PatternScreen) WakeWhenReadyTq(keyCode KeyCode) {
	s.cb.PokeWakelock(0)
}

// VerifyUnlock 不安全时立即完成，否则等待用户绘制图案
func (s *PatternScreen) VerifyUnlock() {
	if !s.secure {
		s.cb.KeyguardDone(true)
		return
	}
	s.Reset()
}

func (s *PatternScreen) SubmitPattern(cells []int) {
	if !s.secure || (s.checker != nil && s.checker.CheckPattern(cells)) {
		s.failures = 0
		s.cb.KeyguardDone(true)
		return
	}
	s.failures++
	s.header = HeaderWrongPattern
	s.cb.PokeWakelock(0)
}

func (s *PatternScreen) OnKeyDown(code KeyCode) bool {
	if code == KeyMenu && !s.secure {
		s.cb.KeyguardDone(true)
		return true
	}
	return false
}

func (s *PatternScreen) OnClick(b Button) {
	if b == ButtonEmergency {
		s.cb.TakeEmergencyCallAction()
	}
}

// Failures 连续失败次数
func (s *PatternScreen) Failures() int {
	return s.failures
}

func (s *PatternScreen) Status() ScreenStatus {
	return ScreenStatus{Header: s.header, Entered: s.failures}
}
