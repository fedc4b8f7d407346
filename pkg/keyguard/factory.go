package keyguard

import (
	"fmt"

	"github.com/iniwex5/keyguard-go/pkg/policy"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

// DefaultFactory 创建内置的两种界面
type DefaultFactory struct {
	Supplier sim.PinSupplier
	Patterns policy.PatternChecker
	// NewProgress 可选，为每个 SIM 界面创建进度提示
	NewProgress func() Progress
	// OnSimUnlocked 可选，SIM PIN 校验成功时调用 (如 sim.Monitor.ReportSimPinUnlocked)
	OnSimUnlocked func()
}

func (f *DefaultFactory) CreateScreen(variant policy.Variant, sc *ScreenContext) (Screen, error) {
	switch variant {
	case policy.VariantSimPin:
		if f.Supplier == nil {
			return nil, fmt.Errorf("sim-pin screen requires a pin supplier")
		}
		var progress Progress
		if f.NewProgress != nil {
			progress = f.NewProgress()
		}
		return NewSimUnlockScreen(sc, f.Supplier, progress, f.OnSimUnlocked), nil
	case policy.VariantPattern:
		return NewPatternScreen(sc, f.Patterns), nil
	default:
		return nil, fmt.Errorf("unknown screen variant %d", int(variant))
	}
}
