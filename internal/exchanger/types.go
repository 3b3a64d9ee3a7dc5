package exchanger

import "sort"

// APIKeyField はトークン交換に使用するAPIキーを格納したシークレットのキー。
const APIKeyField = "api_key"

// APIKeyGrantType はIDプロバイダにAPIキーを提示する際のgrant_type。
const APIKeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"

// Backend はシークレットストアへの接続先とログイン時に使用するロール。
type Backend struct {
	// Address はシークレットストアのベースURL（例: "http://vault:8200"）。
	Address string
	// AuthPath はJWTログインのパス（例: "/v1/auth/kubernetes/login"）。
	AuthPath string
	// Role はログイン時に引き受けるロール。
	Role string
}

// AuthSession はシークレットストアへのログイン結果。
// 1リクエストの間だけ使用し、キャッシュや再利用はしない。
type AuthSession struct {
	// ClientToken はシークレット読み取りに使用する短命なトークン。
	ClientToken string
	// Accessor はトークンのアクセサ。
	Accessor string
	// Policies はトークンに付与されたポリシー。
	Policies []string
	// LeaseDuration はトークンの有効期間（秒）。
	LeaseDuration int
	// Renewable はトークンが更新可能かどうか。
	Renewable bool
}

// Secret はシークレットストアから読み取ったキーと値の組。
// 数値はjson.Numberとして保持する。
// ディスクやinfoレベル以上のログには出力しない。
type Secret map[string]any

// APIKey はシークレットからAPIキーを取り出す。
// キーが無い、文字列でない、または空の場合はfalseを返す。
func (s Secret) APIKey() (string, bool) {
	v, ok := s[APIKeyField].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Keys はシークレットのキーをソートして返す。値は含まない。
func (s Secret) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AccessToken はIDプロバイダが発行したアクセストークン。
// 有効期限の管理や更新は行わず、リクエストごとに取得し直す。
type AccessToken struct {
	// Token はアクセストークン本体。
	Token string
	// TokenType はトークンの種類（例: "Bearer"）。
	TokenType string
	// ExpiresIn はトークンの有効期間（秒）。
	ExpiresIn int64
}

// loginRequest はJWTログインのリクエストボディ。
type loginRequest struct {
	JWT  string `json:"jwt"`
	Role string `json:"role"`
}

// loginResponse はJWTログインのレスポンスボディ。
type loginResponse struct {
	Auth *struct {
		ClientToken   *string  `json:"client_token"`
		Accessor      string   `json:"accessor"`
		Policies      []string `json:"policies"`
		LeaseDuration int      `json:"lease_duration"`
		Renewable     bool     `json:"renewable"`
	} `json:"auth"`
}

// tokenResponse はIDプロバイダのトークン交換レスポンスボディ。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
