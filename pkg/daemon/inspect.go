package daemon

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/iniwex5/keyguard-go/pkg/config"
	"github.com/iniwex5/keyguard-go/pkg/policy"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

// Report 一次性查询的安全状态
type Report struct {
	IMSI    string
	Factors policy.Factors
	Secure  bool
	Variant policy.Variant
	// SimErr 查询 SIM 状态失败时非空，此时 SimState 按 Unknown 计算
	SimErr error
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sim:      %s\n", r.Factors.SimState)
	if r.IMSI != "" {
		fmt.Fprintf(&b, "imsi:     %s\n", r.IMSI)
	}
	if r.SimErr != nil {
		fmt.Fprintf(&b, "sim err:  %v\n", r.SimErr)
	}
	fmt.Fprintf(&b, "pattern:  enabled=%t saved=%t\n", r.Factors.PatternEnabled, r.Factors.PatternSaved)
	fmt.Fprintf(&b, "secure:   %t\n", r.Secure)
	fmt.Fprintf(&b, "screen:   %s", r.Variant)
	return b.String()
}

// Inspect 打开配置的 SIM 后端，给出当前的安全因素和将要显示的界面
func Inspect(ctx context.Context, cfg *config.Config, provider sim.Provider) (report *Report, err error) {
	if provider == nil {
		if provider, err = OpenSIM(cfg.SIM); err != nil {
			return nil, fmt.Errorf("open sim: %w", err)
		}
		defer func() {
			err = multierr.Append(err, provider.Close())
		}()
	}

	props := policy.NewProperties(lockSettings(cfg.Lock), provider)
	factors, simErr := props.Factors(ctx)
	report = &Report{
		Factors: factors,
		Secure:  policy.IsSecure(factors),
		Variant: policy.Select(factors),
		SimErr:  simErr,
	}
	if imsi, err := provider.GetIMSI(); err == nil {
		report.IMSI = imsi
	}
	return report, nil
}
