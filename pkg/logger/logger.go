package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	globalSugar  *zap.SugaredLogger
	fileSink     *lumberjack.Logger
	once         sync.Once
)

// Options 日志初始化参数
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console

	// File 非空时同时写入滚动日志文件
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// fixedWidthColorLevelEncoder 固定宽度（5字符）的彩色日志等级编码器
func fixedWidthColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	s := level.CapitalString()
	for len(s) < 5 {
		s += " "
	}
	switch level {
	case zapcore.DebugLevel:
		s = "\x1b[35m" + s + "\x1b[0m"
	case zapcore.InfoLevel:
		s = "\x1b[34m" + s + "\x1b[0m"
	case zapcore.WarnLevel:
		s = "\x1b[33m" + s + "\x1b[0m"
	case zapcore.ErrorLevel:
		s = "\x1b[31m" + s + "\x1b[0m"
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		s = "\x1b[31;1m" + s + "\x1b[0m"
	}
	enc.AppendString(s)
}

// Init 初始化全局日志器
// level: debug, info, warn, error
// format: json, console
func Init(level, format string) error {
	return InitWithOptions(Options{Level: level, Format: format})
}

// InitWithOptions 初始化全局日志器，可选文件输出
func InitWithOptions(opts Options) error {
	var err error
	once.Do(func() {
		err = initLogger(opts)
	})
	return err
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = fixedWidthColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("[2006-01-02 15:04:05]")
	cfg.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		const width = 28
		s := caller.TrimmedPath()
		if len(s) < width {
			s += strings.Repeat(" ", width-len(s))
		}
		enc.AppendString(s)
	}
	cfg.ConsoleSeparator = " "
	cfg.TimeKey = "time"
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	}
	return zapcore.NewConsoleEncoder(consoleEncoderConfig())
}

func initLogger(opts Options) error {
	level := parseLevel(opts.Level)

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(opts.Format), zapcore.AddSync(os.Stdout), level),
	}

	// 文件输出始终使用 JSON，避免颜色控制符写入文件
	if opts.File != "" {
		fileSink = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(jsonEncoderConfig()),
			zapcore.AddSync(fileSink),
			level,
		))
	}

	setLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

func setLogger(l *zap.Logger) {
	globalLogger = l
	globalSugar = l.Sugar()
}

// NewWriterLogger 创建输出到 w 的 JSON 日志器 (测试用)
func NewWriterLogger(w io.Writer, level string) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(w), parseLevel(level))
	return zap.New(core)
}

// Get 获取全局 Logger
// 未初始化时使用默认配置；once 保证并发调用安全
func Get() *zap.Logger {
	_ = Init("info", "console")
	return globalLogger
}

// Sugar 获取 SugaredLogger
func Sugar() *zap.SugaredLogger {
	_ = Init("info", "console")
	return globalSugar
}

// Sync 刷新日志缓冲，并关闭滚动文件
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = globalLogger.Sync()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
	if fileSink != nil {
		return fileSink.Close()
	}
	return nil
}

// Debug 记录调试信息
func Debug(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info 记录信息
func Info(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Warn 记录警告
func Warn(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error 记录错误
func Error(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// With 创建带字段的 Logger
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Named 创建命名 Logger
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// 便捷字段函数 (从 zap 导出)
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Uint32   = zap.Uint32
	Uint64   = zap.Uint64
	Bool     = zap.Bool
	Duration = zap.Duration
	Err      = zap.Error
	Any      = zap.Any
	Stringer = zap.Stringer
)
