package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// testPayload はテスト用のリクエスト/レスポンスペイロード。
type testPayload struct {
	// Name はテスト用の名前フィールド。
	Name string `json:"name"`
	// Value はテスト用の値フィールド。
	Value int `json:"value"`
}

// newRecordingServer は受け取ったリクエストを記録し、指定のステータスとボディを返すテストサーバーを生成する。
func newRecordingServer(t *testing.T, status int, body string, received *testRequest) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// newTestClient は既定のTLS設定でbaseURL向けのクライアントを生成する。
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewWithTransport(baseURL, TransportConfig{}, 0)
	if err != nil {
		t.Fatalf("NewWithTransport()でエラーが発生: %v", err)
	}
	return client
}

// TestNewWithTransport はNewWithTransport関数を検証する。
func TestNewWithTransport(t *testing.T) {
	t.Parallel()

	t.Run("ベースURLと既定のタイムアウトが設定されること", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "http://localhost:8200")
		if client.baseURL != "http://localhost:8200" {
			t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:8200")
		}
		if client.Timeout() != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", client.Timeout(), DefaultTimeout)
		}
	})

	t.Run("指定したタイムアウトが設定されること", func(t *testing.T) {
		t.Parallel()

		client, err := NewWithTransport("", TransportConfig{}, 3*time.Second)
		if err != nil {
			t.Fatalf("NewWithTransport()でエラーが発生: %v", err)
		}
		if client.Timeout() != 3*time.Second {
			t.Errorf("Timeout = %v, want %v", client.Timeout(), 3*time.Second)
		}
	})

	t.Run("タイムアウトが0以下の場合デフォルト値が使われること", func(t *testing.T) {
		t.Parallel()

		client, err := NewWithTransport("", TransportConfig{}, 0)
		if err != nil {
			t.Fatalf("NewWithTransport()でエラーが発生: %v", err)
		}
		if client.Timeout() != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", client.Timeout(), DefaultTimeout)
		}
	})

	t.Run("不正なTLS設定でエラーが返ること", func(t *testing.T) {
		t.Parallel()

		_, err := NewWithTransport("", TransportConfig{MinVersion: "9.9"}, time.Second)
		if err == nil {
			t.Fatal("NewWithTransport()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestPostJSON はPostJSON関数を検証する。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("JSONボディでPOSTリクエストを送信してレスポンスを取得できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{"name":"response","value":200}`, &received)

		client := newTestClient(t, ts.URL)
		resp, err := client.PostJSON(context.Background(), "/v1/auth/kubernetes/login", testPayload{Name: "request", Value: 100}, nil)
		if err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}

		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/v1/auth/kubernetes/login" {
			t.Errorf("Path = %q, want %q", received.Path, "/v1/auth/kubernetes/login")
		}
		if got := received.Headers.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}

		var sent testPayload
		if err := json.Unmarshal(received.Body, &sent); err != nil {
			t.Fatalf("リクエストボディのパースに失敗: %v", err)
		}
		if sent.Name != "request" || sent.Value != 100 {
			t.Errorf("sent = %+v, want {request 100}", sent)
		}

		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var result testPayload
		if err := resp.DecodeJSON(&result); err != nil {
			t.Fatalf("DecodeJSON()でエラーが発生: %v", err)
		}
		if result.Name != "response" || result.Value != 200 {
			t.Errorf("result = %+v, want {response 200}", result)
		}
	})

	t.Run("エラーステータスでもエラーにならずステータスとボディが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusForbidden, `{"errors":["permission denied"]}`, &received)

		client := newTestClient(t, ts.URL)
		resp, err := client.PostJSON(context.Background(), "/login", testPayload{}, nil)
		if err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusForbidden)
		}
		if string(resp.Body) != `{"errors":["permission denied"]}` {
			t.Errorf("Body = %q", string(resp.Body))
		}
	})

	t.Run("シリアライズできないボディでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "http://localhost:1")
		_, err := client.PostJSON(context.Background(), "/", make(chan int), nil)
		if err == nil {
			t.Fatal("PostJSON()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("キャンセルされたコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{}`, &received)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := newTestClient(t, ts.URL)
		_, err := client.PostJSON(ctx, "/", testPayload{}, nil)
		if err == nil {
			t.Fatal("PostJSON()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestPostForm はPostForm関数を検証する。
func TestPostForm(t *testing.T) {
	t.Parallel()

	t.Run("フォームエンコードされたボディと追加ヘッダーが送信されること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{"access_token":"x"}`, &received)

		client := newTestClient(t, ts.URL)
		form := url.Values{"grant_type": {"urn:test"}, "apikey": {"k1"}}
		header := http.Header{"Accept": {"application/json"}}
		if _, err := client.PostForm(context.Background(), "/identity/token", form, header); err != nil {
			t.Fatalf("PostForm()でエラーが発生: %v", err)
		}

		if got := received.Headers.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q, want %q", got, "application/x-www-form-urlencoded")
		}
		if got := received.Headers.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want %q", got, "application/json")
		}
		values, err := url.ParseQuery(string(received.Body))
		if err != nil {
			t.Fatalf("フォームのパースに失敗: %v", err)
		}
		if values.Get("grant_type") != "urn:test" || values.Get("apikey") != "k1" {
			t.Errorf("form = %v", values)
		}
	})

	t.Run("呼び出し元のヘッダーが変更されないこと", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{}`, &received)

		header := http.Header{"Accept": {"application/json"}}
		client := newTestClient(t, ts.URL)
		if _, err := client.PostForm(context.Background(), "/", url.Values{}, header); err != nil {
			t.Fatalf("PostForm()でエラーが発生: %v", err)
		}
		if header.Get("Content-Type") != "" {
			t.Error("呼び出し元のヘッダーにContent-Typeが追加された")
		}
	})
}

// TestGet はGet関数を検証する。
func TestGet(t *testing.T) {
	t.Parallel()

	t.Run("指定したヘッダー付きでGETリクエストを送信できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{"data":{"k":"v"}}`, &received)

		client := newTestClient(t, ts.URL)
		resp, err := client.Get(context.Background(), "/v1/kv/demo", http.Header{"X-Vault-Token": {"ctok"}})
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if received.Method != http.MethodGet {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodGet)
		}
		if got := received.Headers.Get("X-Vault-Token"); got != "ctok" {
			t.Errorf("X-Vault-Token = %q, want %q", got, "ctok")
		}
		if len(received.Body) != 0 {
			t.Errorf("GETリクエストにボディが含まれている: %q", string(received.Body))
		}
		if string(resp.Body) != `{"data":{"k":"v"}}` {
			t.Errorf("Body = %q", string(resp.Body))
		}
	})

	t.Run("不正なJSONレスポンスでDecodeJSONがエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `not json`, &received)

		client := newTestClient(t, ts.URL)
		resp, err := client.Get(context.Background(), "/", nil)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		var v map[string]any
		if err := resp.DecodeJSON(&v); err == nil {
			t.Fatal("DecodeJSON()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("上限ちょうどのレスポンスボディは読み取れること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, strings.Repeat("a", maxResponseBody), &received)

		client := newTestClient(t, ts.URL)
		resp, err := client.Get(context.Background(), "/", nil)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if len(resp.Body) != maxResponseBody {
			t.Errorf("len(Body) = %d, want %d", len(resp.Body), maxResponseBody)
		}
	})

	t.Run("上限を超えるレスポンスボディはErrResponseTooLargeになること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, strings.Repeat("a", maxResponseBody+1), &received)

		client := newTestClient(t, ts.URL)
		resp, err := client.Get(context.Background(), "/", nil)
		if !errors.Is(err, ErrResponseTooLarge) {
			t.Fatalf("エラー = %v, want ErrResponseTooLarge", err)
		}
		if resp != nil {
			t.Errorf("resp = %+v, want nil", resp)
		}
	})

	t.Run("接続できないサーバーに対してエラーが返ること", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, "http://127.0.0.1:1")
		if _, err := client.Get(context.Background(), "/", nil); err == nil {
			t.Fatal("Get()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("タイムアウトした場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			ts.Close()
		})

		client, err := NewWithTransport(ts.URL, TransportConfig{}, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("NewWithTransport()でエラーが発生: %v", err)
		}
		if _, err := client.Get(context.Background(), "/", nil); err == nil {
			t.Fatal("Get()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestWithRequestID はリクエストIDの伝播を検証する。
func TestWithRequestID(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストにリクエストIDを設定して伝播できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{}`, &received)

		ctx := WithRequestID(context.Background(), "req-123")
		client := newTestClient(t, ts.URL)
		if _, err := client.Get(ctx, "/", nil); err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if got := received.Headers.Get("X-Request-ID"); got != "req-123" {
			t.Errorf("X-Request-ID = %q, want %q", got, "req-123")
		}
		if got := RequestIDFrom(ctx); got != "req-123" {
			t.Errorf("RequestIDFrom() = %q, want %q", got, "req-123")
		}
	})

	t.Run("リクエストIDが設定されていない場合ヘッダーが空であること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, http.StatusOK, `{}`, &received)

		client := newTestClient(t, ts.URL)
		if _, err := client.Get(context.Background(), "/", nil); err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if got := received.Headers.Get("X-Request-ID"); got != "" {
			t.Errorf("X-Request-ID = %q, want empty", got)
		}
		if got := RequestIDFrom(context.Background()); got != "" {
			t.Errorf("RequestIDFrom() = %q, want empty", got)
		}
	})
}
