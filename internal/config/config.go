// Package config はsecret-providerの設定を読み込み、検証する。
//
// 既定値、設定ファイル（TOMLまたはYAML）、環境変数の順に読み込み、後のものが優先される。
// 設定ファイルのキーは元のHCL形式の設定（vault_address = "..." など）と互換性がある。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nao1215/secretprovider/internal/logger"
	"github.com/nao1215/secretprovider/pkg/httpclient"
)

// EnvPrefix は設定を上書きする環境変数の接頭辞。
const EnvPrefix = "SECRET_PROVIDER_"

// 開発用の既定値。設定ファイルが指定されない場合に使用する。
const (
	DefaultPort            = 5555
	DefaultVaultAddress    = "http://vault.vault.svc.cluster.local:8200"
	DefaultVaultPath       = "/v1/auth/kubernetes/login"
	DefaultIAMEndpoint     = "https://iam.cloud.ibm.com/identity/token"
	DefaultJWTLocation     = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	DefaultTimeout         = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultAuditPath       = "secret-provider-audit.db"
)

// Config はsecret-providerの設定。起動時に一度だけ読み込み、以降は変更しない。
type Config struct {
	// Port は待ち受けるポート番号。
	Port int `koanf:"port"`
	// VaultAddress はシークレットストアのベースURL。
	VaultAddress string `koanf:"vault_address"`
	// VaultPath はJWTログインのパス。
	VaultPath string `koanf:"vault_path"`
	// IAMEndpoint はIDプロバイダのトークン交換エンドポイント。
	IAMEndpoint string `koanf:"iam_endpoint"`
	// JWTLocation は身元トークンファイルのパス。
	JWTLocation string `koanf:"jwt_location"`
	// JWTEnv はトークンファイルから取得できない場合に参照する環境変数名。開発用で、空の場合は参照しない。
	JWTEnv string `koanf:"jwt_env"`
	// Timeout は外部呼び出し1回あたりのタイムアウト。
	Timeout time.Duration `koanf:"timeout"`
	// ShutdownTimeout はグレースフルシャットダウンの待機時間。
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Logging logger.Config `koanf:"logging"`
	Vault   BackendConfig `koanf:"vault"`
	IAM     BackendConfig `koanf:"iam"`
	Audit   AuditConfig   `koanf:"audit"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// BackendConfig は外部の信頼ドメインごとの接続設定。
type BackendConfig struct {
	TLS httpclient.TransportConfig `koanf:"tls"`
}

// AuditConfig はアクセス監査ログの設定。
type AuditConfig struct {
	// Enabled は監査ログを記録するかどうか。
	Enabled bool `koanf:"enabled"`
	// Path はSQLiteデータベースファイルのパス。
	Path string `koanf:"path"`
}

// MetricsConfig はメトリクスの設定。
type MetricsConfig struct {
	// Enabled は/metricsエンドポイントを公開するかどうか。
	Enabled bool `koanf:"enabled"`
}

// defaults は既定値をkoanfのキー階層で返す。
func defaults() map[string]any {
	return map[string]any{
		"port":             DefaultPort,
		"vault_address":    DefaultVaultAddress,
		"vault_path":       DefaultVaultPath,
		"iam_endpoint":     DefaultIAMEndpoint,
		"jwt_location":     DefaultJWTLocation,
		"timeout":          DefaultTimeout.String(),
		"shutdown_timeout": DefaultShutdownTimeout.String(),
		"logging": map[string]any{
			"level":  "info",
			"format": logger.FormatJSON,
		},
		"vault": map[string]any{
			"tls": map[string]any{"min_version": "1.2"},
		},
		"iam": map[string]any{
			"tls": map[string]any{"min_version": "1.2"},
		},
		"audit": map[string]any{
			"enabled": false,
			"path":    DefaultAuditPath,
		},
		"metrics": map[string]any{
			"enabled": true,
		},
	}
}

// Load は設定を読み込む。
// pathが空の場合は既定値と環境変数のみを使用する。
// 拡張子が.yamlまたは.ymlのファイルはYAML、それ以外はTOMLとして解析する。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("既定値の読み込みに失敗: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("設定の変換に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// parserFor は拡張子に応じたパーサーを返す。
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return toml.Parser()
	}
}

// envKey は環境変数名を設定キーに変換する。
// "__" は "_" に、"_" は階層の区切りに変換する。
// 元の設定ファイルのトップレベルのキーは、そのままの名前でも指定できる。
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	switch s {
	case "vault_address", "vault_path", "iam_endpoint", "jwt_location", "jwt_env", "shutdown_timeout":
		return s
	case "log_level":
		return "logging.level"
	}

	s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port が範囲外です: %d", c.Port))
	}
	if err := validateURL("vault_address", c.VaultAddress); err != nil {
		errs = append(errs, err)
	}
	if !strings.HasPrefix(c.VaultPath, "/") {
		errs = append(errs, fmt.Errorf("vault_path は / で始まる必要があります: %q", c.VaultPath))
	}
	if err := validateURL("iam_endpoint", c.IAMEndpoint); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout は正の値である必要があります: %s", c.Timeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout は正の値である必要があります: %s", c.ShutdownTimeout))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if err := logger.ValidateFormat(c.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging.format: %w", err))
	}
	if err := c.Vault.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vault.tls: %w", err))
	}
	if err := c.IAM.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("iam.tls: %w", err))
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, errors.New("audit.path は監査ログを有効にする場合に必須です"))
	}

	return errors.Join(errs...)
}

// validateURL はhttpまたはhttpsの絶対URLであることを検証する。
func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s が不正なURLです: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s のスキームはhttpまたはhttpsである必要があります: %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s にホストがありません: %q", key, raw)
	}
	return nil
}
