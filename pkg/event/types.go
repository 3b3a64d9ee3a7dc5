package event

import (
	"encoding/json"
	"time"
)

// Kind はアクセスの種類を表す。
type Kind string

const (
	// KindSecretRead は/get-secretによるシークレットの読み取りを表す。
	KindSecretRead Kind = "SecretRead"
	// KindTokenExchange は/get-iam-tokenによるアクセストークンの取得を表す。
	KindTokenExchange Kind = "TokenExchange"
)

// 呼び出し元の要求が外部呼び出しの前に拒否された場合の結果。
// それ以外の結果は外部呼び出しの分類（ok, transport_error など）をそのまま使う。
const (
	OutcomeMissingParameter = "missing_parameter"
	OutcomeTokenUnavailable = "token_unavailable"
)

// Event はシークレットへのアクセス1件を表す不変の監査レコード。
// トークンやシークレットの値は含めない。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// RequestID はアクセスログや外部呼び出しと突き合わせるためのリクエストID。
	RequestID string `json:"request_id"`
	// Kind はアクセスの種類。
	Kind Kind `json:"kind"`
	// SecretName は要求されたシークレットのパス。
	SecretName string `json:"secret_name"`
	// Role はログイン時に要求されたロール。
	Role string `json:"role"`
	// Subject は身元トークンのサブジェクト。取り出せない場合は空。
	Subject string `json:"subject,omitempty"`
	// Outcome はアクセスの結果の分類。
	Outcome string `json:"outcome"`
	// StatusCode は呼び出し元に返したHTTPステータスコード。
	StatusCode int `json:"status_code"`
	// Data は種類ごとの付加情報（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// Access はイベント生成時に指定するアクセスの内容。
type Access struct {
	RequestID  string
	SecretName string
	Role       string
	Subject    string
	Outcome    string
	StatusCode int
}

// SecretReadData はSecretReadイベントのデータ。
type SecretReadData struct {
	// Keys は読み取ったシークレットのキー名。値は含めない。
	Keys []string `json:"keys"`
}

// TokenExchangeData はTokenExchangeイベントのデータ。
type TokenExchangeData struct {
	// TokenType は発行されたトークンの種類。
	TokenType string `json:"token_type,omitempty"`
	// ExpiresIn はトークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in,omitempty"`
}
