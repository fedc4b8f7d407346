// Package cli keyguardd 的命令行入口
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/iniwex5/keyguard-go/pkg/config"
	"github.com/iniwex5/keyguard-go/pkg/daemon"
	"github.com/iniwex5/keyguard-go/pkg/logger"
)

// BuildInfo 编译时注入的版本信息
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig 读取配置，用命令行参数覆盖日志设置后再统一校验
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Read(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withLogging 初始化日志后执行 fn，返回前刷新并关闭日志文件
func withLogging(cfg config.Logging, fn func() error) error {
	err := logger.InitWithOptions(logger.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()
	return fn()
}

func NewRootCommand(in io.Reader, out io.Writer, build BuildInfo) *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "keyguardd",
		Short:         "Device lock gate with SIM PIN unlock",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(out)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "Path to TOML config file")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&g.logFormat, "log-format", "", "Log format: console, json")

	cmd.AddCommand(newRunCommand(g))
	cmd.AddCommand(newStatusCommand(g))
	cmd.AddCommand(newVersionCommand(build))
	return cmd
}

func newRunCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the keyguard daemon with a line console on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return withLogging(cfg.Logging, func() error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return runDaemon(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (err error) {
	d, err := daemon.New(ctx, cfg, daemon.Options{})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, d.Close())
	}()

	if err := d.Run(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newStatusCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print SIM state, security factors and the screen that would be shown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return withLogging(cfg.Logging, func() error {
				report, err := daemon.Inspect(cmd.Context(), cfg, nil)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), report.String())
				return err
			})
		},
	}
}

func newVersionCommand(build BuildInfo) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(build)
			}
			_, err := fmt.Fprintf(out, "version=%s commit=%s build_time=%s\n", build.Version, build.Commit, build.BuildTime)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version as JSON")
	return cmd
}
