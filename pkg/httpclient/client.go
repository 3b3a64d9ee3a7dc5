package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout は外部呼び出し1回あたりのデフォルトのタイムアウト。
const DefaultTimeout = 10 * time.Second

// maxResponseBody はレスポンスボディとして読み込む最大バイト数。
const maxResponseBody = 1 << 20

// ErrResponseTooLarge はレスポンスボディが上限を超えたことを表す。
var ErrResponseTooLarge = errors.New("レスポンスボディが上限を超えています")

// headerKeyRequestID はリクエストIDを伝播するためのHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// Client は外部サービス（シークレットストア、IDプロバイダ）と通信するHTTPクライアント。
// タイムアウトとTLSの設定を持つ。リトライは行わない。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先のベースURL。空の場合はpathに完全なURLを渡す。
	baseURL string
}

// Response は外部サービスからのレスポンス。
// ステータスコードの判定は呼び出し側で行う。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body []byte
}

// NewWithTransport はTLS設定とタイムアウトを指定してHTTPクライアントを生成する。
// 証明書ファイルの読み込みに失敗した場合はエラーを返す。
func NewWithTransport(baseURL string, cfg TransportConfig, timeout time.Duration) (*Client, error) {
	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: baseURL,
	}, nil
}

// Timeout はクライアントに設定されたタイムアウトを返す。
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) PostJSON(ctx context.Context, path string, body any, header http.Header) (*Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
	}
	h := cloneHeader(header)
	h.Set("Content-Type", "application/json")
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(jsonBody), h)
}

// PostForm は指定パスにフォームエンコードされたボディでPOSTリクエストを送信する。
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, header http.Header) (*Response, error) {
	h := cloneHeader(header)
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), h)
}

// Get は指定パスにGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, cloneHeader(header))
}

// do はHTTPリクエストを実行する共通処理。
// 通信自体に失敗した場合（タイムアウトを含む）のみエラーを返す。
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*Response, error) {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header = header

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set(headerKeyRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	if len(respBody) > maxResponseBody {
		return nil, fmt.Errorf("%w: %d バイト: status=%d", ErrResponseTooLarge, maxResponseBody, resp.StatusCode)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}

// DecodeJSON はレスポンスボディを指定された値にデシリアライズする。
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}

// cloneHeader はヘッダーを複製する。nilの場合は空のヘッダーを返す。
func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// 外部呼び出し時にX-Request-IDヘッダーとして伝播される。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFrom はコンテキストからリクエストIDを取得する。
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
