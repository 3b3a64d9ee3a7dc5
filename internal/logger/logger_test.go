package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestParseLevel はParseLevelを検証する。
func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "debug", level: "debug", want: zapcore.DebugLevel},
		{name: "大文字のDEBUG", level: "DEBUG", want: zapcore.DebugLevel},
		{name: "info", level: "info", want: zapcore.InfoLevel},
		{name: "空文字列はinfo", level: "", want: zapcore.InfoLevel},
		{name: "warn", level: "warn", want: zapcore.WarnLevel},
		{name: "warning", level: "warning", want: zapcore.WarnLevel},
		{name: "error", level: "error", want: zapcore.ErrorLevel},
		{name: "未対応の値", level: "trace", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.level)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLevel(%q) でエラーが返らなかった", tt.level)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) でエラーが発生: %v", tt.level, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

// TestNew はNewを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json形式でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		log, err := New(Config{Level: "info", Format: FormatJSON})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if log.Core().Enabled(zapcore.DebugLevel) {
			t.Error("infoレベルでdebugが有効になっている")
		}
		if !log.Core().Enabled(zapcore.InfoLevel) {
			t.Error("infoレベルでinfoが無効になっている")
		}
	})

	t.Run("console形式とdebugレベルでロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		log, err := New(Config{Level: "debug", Format: FormatConsole})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if !log.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debugレベルでdebugが無効になっている")
		}
	})

	t.Run("未対応のレベルの場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(Config{Level: "verbose"}); err == nil {
			t.Error("エラーが返らなかった")
		}
	})

	t.Run("未対応の出力形式の場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
			t.Error("エラーが返らなかった")
		}
	})
}
