// Package logger は設定値からzapの構造化ロガーを構築する。
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 出力形式。
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string `koanf:"level"`
	// Format は出力形式（json, console）。
	Format string `koanf:"format"`
}

// ParseLevel はログレベルの設定値をzapcore.Levelに変換する。
// 大文字小文字は区別しない。未対応の値はエラーにする。
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("未対応のログレベル: %q", level)
	}
}

// ValidateFormat は出力形式の設定値を検証する。
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON, FormatConsole:
		return nil
	default:
		return fmt.Errorf("未対応のログ出力形式: %q", format)
	}
}

// New は設定からロガーを生成する。
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if err := ValidateFormat(cfg.Format); err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if strings.ToLower(cfg.Format) == FormatConsole {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの構築に失敗: %w", err)
	}
	return log, nil
}
