package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/secretprovider/pkg/httpclient"
)

// HeaderKeyRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderKeyRequestID = "X-Request-ID"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
const contextKeyRequestID = "request_id"

// maxRequestIDLength は呼び出し元から受け付けるリクエストIDの最大長。
const maxRequestIDLength = 128

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// 呼び出し元がX-Request-IDを指定していればそれを使い、無いか不正な場合はUUIDを生成する。
// リクエストIDはレスポンスヘッダーと外部呼び出しのヘッダーに設定される。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderKeyRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		c.Set(contextKeyRequestID, id)
		c.Header(HeaderKeyRequestID, id)
		c.Request = c.Request.WithContext(httpclient.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
// RequestIDミドルウェアが事前に適用されていない場合は空文字列を返す。
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// validRequestID はログに出力しても安全な文字だけで構成されているかを判定する。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
