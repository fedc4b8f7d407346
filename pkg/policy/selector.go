package policy

import "github.com/iniwex5/keyguard-go/pkg/sim"

// Variant 认证界面类型
type Variant int

const (
	VariantPattern Variant = iota
	VariantSimPin
)

func (v Variant) String() string {
	switch v {
	case VariantSimPin:
		return "sim-pin"
	default:
		return "pattern"
	}
}

// Select 根据安全因素选择认证界面
// SIM 需要 PIN/PUK 时总是 SIM 界面；SIM 缺失且没有可用的图案锁时也落到 SIM 界面。
// 在每次创建界面时调用；界面显示期间 SIM 状态变化不会替换已有界面。
func Select(f Factors) Variant {
	if SimLocked(f) {
		return VariantSimPin
	}
	if f.SimState == sim.StateAbsent && !isPatternSecure(f) {
		return VariantSimPin
	}
	return VariantPattern
}
