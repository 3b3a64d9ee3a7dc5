package exchanger

import (
	"errors"
	"fmt"
)

// 外部呼び出しの種類。エラー、ログ、メトリクスのラベルに使用する。
const (
	// OpAuthenticate はシークレットストアへのJWTログイン。
	OpAuthenticate = "authenticate"
	// OpReadSecret はシークレットストアからのシークレット読み取り。
	OpReadSecret = "read_secret"
	// OpExchangeToken はIDプロバイダでのAPIキーとアクセストークンの交換。
	OpExchangeToken = "exchange_token"
)

// 呼び出し結果の分類。Outcomeが返す値。
const (
	OutcomeOK                = "ok"
	OutcomeTransportError    = "transport_error"
	OutcomeMalformedResponse = "malformed_response"
	OutcomeEmptyAuthResponse = "empty_auth_response"
	OutcomeMissingAPIKey     = "missing_api_key"
	OutcomeError             = "error"
)

var (
	// ErrEmptyAuthResponse はログインが200を返したがボディが空だったことを表す。
	ErrEmptyAuthResponse = errors.New("シークレットストアのログイン応答が空です")
	// ErrMissingAPIKey はシークレットにapi_keyが含まれていないことを表す。
	ErrMissingAPIKey = errors.New("シークレットにapi_keyが含まれていません")
)

// TransportError は外部呼び出しが200以外を返したか、通信自体に失敗したことを表す。
// タイムアウトもこのエラーになる。
type TransportError struct {
	// Op は失敗した外部呼び出しの種類。
	Op string
	// URL は呼び出し先のURL。
	URL string
	// StatusCode はHTTPステータスコード。応答を受け取れなかった場合は0。
	StatusCode int
	// Body はレスポンスボディ。サーバー側のログにのみ出力する。
	Body string
	// Err は通信失敗の原因。ステータスコードを受け取った場合はnil。
	Err error
}

// Error はエラーメッセージを返す。
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: 外部呼び出しに失敗: url=%s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: 外部呼び出しがエラーを返しました: url=%s, status=%d, body=%s", e.Op, e.URL, e.StatusCode, e.Body)
}

// Unwrap は原因のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError は外部呼び出しが200を返したが、応答の形式が契約と異なることを表す。
// 障害ではなく契約の不一致を示すため、TransportErrorとは区別する。
type MalformedResponseError struct {
	// Op は外部呼び出しの種類。
	Op string
	// Field は欠落または不正だったフィールド。JSONとして解析できなかった場合は空。
	Field string
	// Err は解析時のエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *MalformedResponseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: 応答の形式が不正です: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: 応答のフィールド %q が不正です: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: 応答にフィールド %q がありません", e.Op, e.Field)
}

// Unwrap は原因のエラーを返す。
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsTokenExchangeError はIDプロバイダでのトークン交換自体の失敗かどうかを判定する。
func IsTokenExchangeError(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Op == OpExchangeToken
	}
	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return malformedErr.Op == OpExchangeToken
	}
	return false
}

// Outcome はエラーを結果の分類に変換する。nilの場合はOutcomeOKを返す。
func Outcome(err error) string {
	var transportErr *TransportError
	var malformedErr *MalformedResponseError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrEmptyAuthResponse):
		return OutcomeEmptyAuthResponse
	case errors.Is(err, ErrMissingAPIKey):
		return OutcomeMissingAPIKey
	case errors.As(err, &transportErr):
		return OutcomeTransportError
	case errors.As(err, &malformedErr):
		return OutcomeMalformedResponse
	default:
		return OutcomeError
	}
}
