package policy

import (
	"context"
	"fmt"

	"github.com/iniwex5/keyguard-go/pkg/logger"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

// LockSettings 图案锁设置
type LockSettings interface {
	PatternEnabled() bool
	SavedPatternExists() bool
}

// PatternChecker 校验绘制的图案
type PatternChecker interface {
	CheckPattern(cells []int) bool
}

// Properties 从上游收集安全因素，并回答是否安全 / 应该创建哪种界面
// (即使界面尚未创建)。
type Properties struct {
	settings LockSettings
	sim      sim.StateReader
}

func NewProperties(settings LockSettings, simReader sim.StateReader) *Properties {
	return &Properties{settings: settings, sim: simReader}
}

// Factors 读取当前安全因素
// SIM 状态查询失败时按 Unknown 处理 (不会单独触发安全锁)，并返回错误供调用方记录。
func (p *Properties) Factors(ctx context.Context) (Factors, error) {
	f := Factors{
		PatternEnabled: p.settings.PatternEnabled(),
		PatternSaved:   p.settings.SavedPatternExists(),
		SimState:       sim.StateUnknown,
	}
	if p.sim == nil {
		return f, nil
	}
	st, err := p.sim.SimState(ctx)
	if err != nil {
		return f, fmt.Errorf("query sim state: %w", err)
	}
	f.SimState = st
	return f, nil
}

// IsSecure 见 IsSecure(Factors)
func (p *Properties) IsSecure(ctx context.Context) bool {
	f, err := p.Factors(ctx)
	if err != nil {
		logger.Named("policy").Warn("SIM 状态不可用", logger.Err(err))
	}
	return IsSecure(f)
}

// Evaluate 返回本次评估的因素、是否安全以及选中的界面
func (p *Properties) Evaluate(ctx context.Context) (Factors, bool, Variant) {
	f, err := p.Factors(ctx)
	if err != nil {
		logger.Named("policy").Warn("SIM 状态不可用", logger.Err(err))
	}
	return f, IsSecure(f), Select(f)
}

// StaticSettings 固定的图案锁设置 (来自配置文件)
type StaticSettings struct {
	Enabled bool
	Saved   bool
	Pattern []int
}

func (s StaticSettings) PatternEnabled() bool     { return s.Enabled }
func (s StaticSettings) SavedPatternExists() bool { return s.Saved }

func (s StaticSettings) CheckPattern(cells []int) bool {
	if len(cells) != len(s.Pattern) {
		return false
	}
	for i := range cells {
		if cells[i] != s.Pattern[i] {
			return false
		}
	}
	return true
}
