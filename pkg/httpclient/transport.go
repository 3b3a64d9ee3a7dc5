package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
)

// TransportConfig は外部呼び出しに使用するTLSトランスポートの設定。
// シークレットストアとIDプロバイダはそれぞれ別の信頼ドメインなので、
// 接続先ごとに独立した値を持つ。
type TransportConfig struct {
	// MinVersion は許可するTLSの最小バージョン（"1.0"〜"1.3"）。空の場合は"1.2"。
	MinVersion string `koanf:"min_version"`
	// InsecureSkipVerify はサーバー証明書の検証を無効にする。開発用途に限る。
	InsecureSkipVerify bool `koanf:"insecure_skip_verify"`
	// CAFile はサーバー証明書の検証に追加するCA証明書（PEM）のパス。
	CAFile string `koanf:"ca_file"`
	// CertFile は相互TLSで提示するクライアント証明書（PEM）のパス。
	CertFile string `koanf:"cert_file"`
	// KeyFile はクライアント証明書の秘密鍵（PEM）のパス。
	KeyFile string `koanf:"key_file"`
}

// ErrIncompleteKeyPair はクライアント証明書と秘密鍵の一方だけが指定されたことを表す。
var ErrIncompleteKeyPair = errors.New("クライアント証明書と秘密鍵は両方を指定する必要があります")

// tlsVersions は設定値とTLSバージョン定数の対応。
var tlsVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// ParseTLSVersion はTLSバージョンの設定値を定数に変換する。
// "TLS1.2" や "tls1.3" のような接頭辞付きの表記も受け付ける。
func ParseTLSVersion(v string) (uint16, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	s = strings.TrimPrefix(s, "tls")
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return tls.VersionTLS12, nil
	}
	version, ok := tlsVersions[s]
	if !ok {
		return 0, fmt.Errorf("未対応のTLSバージョン: %q", v)
	}
	return version, nil
}

// Validate は設定値の整合性を検証する。ファイルの存在は確認しない。
func (c TransportConfig) Validate() error {
	if _, err := ParseTLSVersion(c.MinVersion); err != nil {
		return err
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return ErrIncompleteKeyPair
	}
	return nil
}

// TLSConfig は設定からtls.Configを構築する。
// CAFileが指定された場合はシステムのCA証明書に追加して使用する。
func (c TransportConfig) TLSConfig() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	minVersion, _ := ParseTLSVersion(c.MinVersion)

	cfg := &tls.Config{
		MinVersion:         minVersion,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // 明示的に設定された場合のみ
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("CA証明書の読み込みに失敗: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA証明書が不正です: %s", c.CAFile)
		}
		cfg.RootCAs = pool
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("クライアント証明書の読み込みに失敗: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
