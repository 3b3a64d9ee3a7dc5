package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrTokenUnavailable は身元トークンがリクエストにもファイルにも（設定されていれば環境変数にも）無いことを表す。
var ErrTokenUnavailable = errors.New("身元トークンを取得できません")

// Resolver は身元トークンを解決する。
type Resolver struct {
	// location はトークンファイルのパス。
	location string
	// envName はファイルから取得できない場合に参照する環境変数名。空の場合は参照しない。
	envName string
}

// Option はResolverのオプション。
type Option func(*Resolver)

// WithEnvFallback はトークンファイルから取得できない場合に環境変数nameを参照させる。
// サービスアカウントのトークンファイルが無い開発環境向け。
func WithEnvFallback(name string) Option {
	return func(r *Resolver) {
		r.envName = name
	}
}

// NewResolver は新しいResolverを生成する。
func NewResolver(location string, opts ...Option) *Resolver {
	r := &Resolver{location: location}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location はトークンファイルのパスを返す。
func (r *Resolver) Location() string {
	return r.location
}

// Resolve は身元トークンを返す。
// explicitが空でなければそれを優先し、空の場合はトークンファイルを読み込む。
// ファイルはトークンのローテーションに追従するため、キャッシュせず毎回読み込む。
// ファイルから取得できず環境変数の参照が有効な場合は、環境変数の値を使う。
func (r *Resolver) Resolve(explicit string) (string, error) {
	if token := strings.TrimSpace(explicit); token != "" {
		return token, nil
	}

	token, err := r.readFile()
	if err == nil {
		return token, nil
	}
	if r.envName != "" {
		if v := strings.TrimSpace(os.Getenv(r.envName)); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("%w: 環境変数 %s も未設定です", err, r.envName)
	}
	return "", err
}

// readFile はトークンファイルからトークンを読み込む。
func (r *Resolver) readFile() (string, error) {
	if r.location == "" {
		return "", fmt.Errorf("%w: トークンファイルが設定されていません", ErrTokenUnavailable)
	}

	data, err := os.ReadFile(r.location)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTokenUnavailable, r.location, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s が空です", ErrTokenUnavailable, r.location)
	}
	return token, nil
}
