// Package policy 决定设备是否需要锁屏认证，以及使用哪种认证界面。
package policy

import "github.com/iniwex5/keyguard-go/pkg/sim"

// Factors 一次评估所需的全部安全因素
// 每次评估时从上游重新读取，不缓存。
type Factors struct {
	PatternEnabled bool
	PatternSaved   bool
	SimState       sim.State
}

// IsSecure 是否必须经过认证才能使用设备
// SIM 卡缺失 (Absent) 也视为安全状态。
func IsSecure(f Factors) bool {
	return isPatternSecure(f) || isSimPinSecure(f)
}

func isPatternSecure(f Factors) bool {
	return f.PatternEnabled && f.PatternSaved
}

func isSimPinSecure(f Factors) bool {
	switch f.SimState {
	case sim.StatePinRequired, sim.StatePukRequired, sim.StateAbsent:
		return true
	}
	return false
}

// SimLocked SIM 卡是否需要 PIN 或 PUK 才能解锁
func SimLocked(f Factors) bool {
	return f.SimState == sim.StatePinRequired || f.SimState == sim.StatePukRequired
}
