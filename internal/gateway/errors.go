package gateway

import (
	"fmt"
	"strings"
)

// MissingParameterError は必須のクエリパラメータが指定されていないことを表す。
// 呼び出し元の誤りなので外部呼び出しは行わない。
type MissingParameterError struct {
	// Names は不足しているパラメータ名。
	Names []string
}

// Error はエラーメッセージを返す。
func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("必須パラメータがありません: %s", strings.Join(e.Names, ", "))
}

// requiredParams は両エンドポイントに共通の必須パラメータ。
var requiredParams = []string{paramSecretName, paramRole}

// クエリパラメータ名。
const (
	paramSecretName = "secret_name"
	paramRole       = "role"
	paramJWT        = "jwt"
)
