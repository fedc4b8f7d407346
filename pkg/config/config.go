// Package config 读取 keyguardd 的 TOML 配置
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

// SIM 后端类型
const (
	DriverModem = "modem"
	DriverSoft  = "soft"
)

type Config struct {
	Logging Logging `toml:"logging"`
	SIM     SIM     `toml:"sim"`
	Lock    Lock    `toml:"lock"`
	Screen  Screen  `toml:"screen"`
	Events  Events  `toml:"events"`
}

type Logging struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // console 或 json
	File       string `toml:"file"`   // 为空时只输出到 stderr
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type SIM struct {
	Driver    string   `toml:"driver"`
	Device    string   `toml:"device"` // Modem AT 串口，如 /dev/ttyUSB2
	Baud      int      `toml:"baud"`
	ATTimeout Duration `toml:"at_timeout"`
	// PollInterval SIM 状态缓存的刷新间隔
	PollInterval Duration `toml:"poll_interval"`
	Soft         SoftSIM  `toml:"soft"`
}

// SoftSIM 软件 SIM 的初始参数
type SoftSIM struct {
	IMSI   string `toml:"imsi"`
	PIN    string `toml:"pin"`
	PUK    string `toml:"puk"`
	Absent bool   `toml:"absent"`
}

type Lock struct {
	PatternEnabled bool  `toml:"pattern_enabled"`
	PatternSaved   bool  `toml:"pattern_saved"`
	Pattern        []int `toml:"pattern"`
}

type Screen struct {
	KeyboardOpen bool `toml:"keyboard_open"`
}

type Events struct {
	// Logind 订阅 systemd-logind 的休眠和锁定信号
	Logind bool `toml:"logind"`
}

// Duration 支持 "500ms" 形式的时长
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Logging: Logging{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		SIM: SIM{
			Driver:       DriverSoft,
			Device:       "/dev/ttyUSB2",
			Baud:         115200,
			ATTimeout:    Duration{5 * time.Second},
			PollInterval: Duration{2 * time.Second},
			Soft: SoftSIM{
				IMSI: "001010123456789",
			},
		},
	}
}

// Load 读取并校验配置文件；path 为空时返回默认配置
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Read 读取配置文件但不校验，调用方在覆盖参数后自行 Validate
func Read(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := decode(string(data), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode 在 cfg 现有值的基础上解析 TOML 并校验
func Decode(data string, cfg *Config) error {
	if err := decode(data, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func decode(data string, cfg *Config) error {
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Validate 返回所有校验错误的合并
func (c *Config) Validate() error {
	var err error

	switch c.Logging.Format {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format: unsupported %q", c.Logging.Format))
	}

	switch c.SIM.Driver {
	case DriverModem:
		if c.SIM.Device == "" {
			err = multierr.Append(err, errors.New("sim.device: required for modem driver"))
		}
		if c.SIM.Baud <= 0 {
			err = multierr.Append(err, fmt.Errorf("sim.baud: must be positive, got %d", c.SIM.Baud))
		}
		if c.SIM.ATTimeout.Duration <= 0 {
			err = multierr.Append(err, errors.New("sim.at_timeout: must be positive"))
		}
	case DriverSoft:
		if c.SIM.Soft.PIN != "" && !validPIN(c.SIM.Soft.PIN) {
			err = multierr.Append(err, errors.New("sim.soft.pin: must be 4 to 8 digits"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("sim.driver: unsupported %q", c.SIM.Driver))
	}
	if c.SIM.PollInterval.Duration <= 0 {
		err = multierr.Append(err, errors.New("sim.poll_interval: must be positive"))
	}

	if c.Lock.PatternSaved {
		if len(c.Lock.Pattern) == 0 {
			err = multierr.Append(err, errors.New("lock.pattern: required when pattern_saved is set"))
		}
		for _, cell := range c.Lock.Pattern {
			if cell < 0 || cell > 8 {
				err = multierr.Append(err, fmt.Errorf("lock.pattern: cell %d out of range 0-8", cell))
			}
		}
	}
	return err
}

func validPIN(s string) bool {
	if len(s) < 4 || len(s) > 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
