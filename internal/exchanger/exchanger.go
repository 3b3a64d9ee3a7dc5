package exchanger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/secretprovider/internal/metrics"
	"github.com/nao1215/secretprovider/pkg/httpclient"
)

// headerKeyVaultToken はシークレット読み取り時にクライアントトークンを渡すヘッダーキー。
const headerKeyVaultToken = "X-Vault-Token"

// Exchanger はシークレットストアとIDプロバイダに対する信頼の委譲を実行する。
// 状態を持たないため、複数のリクエストから同時に使用できる。
type Exchanger struct {
	// vault はシークレットストアとの通信クライアント。
	vault *httpclient.Client
	// iam はIDプロバイダとの通信クライアント。
	iam *httpclient.Client
	// log は構造化ロガー。
	log *zap.Logger
	// metrics は外部呼び出しのメトリクス。nilの場合は記録しない。
	metrics *metrics.Metrics
}

// New は新しいExchangerを生成する。
// vaultとiamはそれぞれの信頼ドメイン向けのTLS設定を持つクライアントを渡す。
func New(vault, iam *httpclient.Client, log *zap.Logger, m *metrics.Metrics) *Exchanger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exchanger{
		vault:   vault,
		iam:     iam,
		log:     log,
		metrics: m,
	}
}

// Authenticate は身元トークンとロールでシークレットストアにログインし、クライアントトークンを取得する。
func (e *Exchanger) Authenticate(ctx context.Context, identityToken string, b Backend) (*AuthSession, error) {
	fullAuthPath := b.Address + b.AuthPath
	log := e.logger(ctx, OpAuthenticate)
	log.Debug("シークレットストアにログインします",
		zap.String("full_auth_path", fullAuthPath),
		zap.String("role", b.Role),
	)

	start := time.Now()
	session, err := e.authenticate(ctx, fullAuthPath, identityToken, b.Role)
	e.observe(OpAuthenticate, err, start)
	if err != nil {
		return nil, err
	}

	log.Debug("シークレットストアへのログインに成功しました",
		zap.Strings("policies", session.Policies),
		zap.Int("lease_duration", session.LeaseDuration),
	)
	return session, nil
}

// authenticate はログインの呼び出しと応答の検証を行う。
func (e *Exchanger) authenticate(ctx context.Context, fullAuthPath, identityToken, role string) (*AuthSession, error) {
	resp, err := e.vault.PostJSON(ctx, fullAuthPath, loginRequest{JWT: identityToken, Role: role}, nil)
	if err != nil {
		return nil, &TransportError{Op: OpAuthenticate, URL: fullAuthPath, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: OpAuthenticate, URL: fullAuthPath, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if isEmptyJSON(resp.Body) {
		return nil, ErrEmptyAuthResponse
	}

	var body loginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, &MalformedResponseError{Op: OpAuthenticate, Err: err}
	}
	if body.Auth == nil {
		return nil, &MalformedResponseError{Op: OpAuthenticate, Field: "auth"}
	}
	if body.Auth.ClientToken == nil || *body.Auth.ClientToken == "" {
		return nil, &MalformedResponseError{Op: OpAuthenticate, Field: "auth.client_token"}
	}

	return &AuthSession{
		ClientToken:   *body.Auth.ClientToken,
		Accessor:      body.Auth.Accessor,
		Policies:      body.Auth.Policies,
		LeaseDuration: body.Auth.LeaseDuration,
		Renewable:     body.Auth.Renewable,
	}, nil
}

// FetchSecret はログインで得たクライアントトークンを使ってシークレットを読み取る。
// ログインに失敗した場合はシークレットの読み取りを行わない。
func (e *Exchanger) FetchSecret(ctx context.Context, identityToken, secretPath string, b Backend) (Secret, error) {
	session, err := e.Authenticate(ctx, identityToken, b)
	if err != nil {
		return nil, err
	}

	secretFullPath := b.Address + secretPath
	log := e.logger(ctx, OpReadSecret)
	log.Debug("シークレットを読み取ります", zap.String("secret_full_path", secretFullPath))

	start := time.Now()
	secret, err := e.readSecret(ctx, secretFullPath, session.ClientToken)
	e.observe(OpReadSecret, err, start)
	if err != nil {
		return nil, err
	}

	log.Debug("シークレットを読み取りました", zap.Strings("keys", secret.Keys()))
	return secret, nil
}

// readSecret はシークレット読み取りの呼び出しと応答の検証を行う。
func (e *Exchanger) readSecret(ctx context.Context, secretFullPath, clientToken string) (Secret, error) {
	header := http.Header{}
	header.Set(headerKeyVaultToken, clientToken)

	resp, err := e.vault.Get(ctx, secretFullPath, header)
	if err != nil {
		return nil, &TransportError{Op: OpReadSecret, URL: secretFullPath, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: OpReadSecret, URL: secretFullPath, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, &MalformedResponseError{Op: OpReadSecret, Err: err}
	}
	if isEmptyJSON(body.Data) {
		return nil, &MalformedResponseError{Op: OpReadSecret, Field: "data"}
	}

	// 数値はjson.Numberのまま保持し、呼び出し元に同じ桁で返す
	dec := json.NewDecoder(bytes.NewReader(body.Data))
	dec.UseNumber()
	var secret Secret
	if err := dec.Decode(&secret); err != nil {
		return nil, &MalformedResponseError{Op: OpReadSecret, Field: "data", Err: err}
	}
	return secret, nil
}

// ExchangeForAccessToken はシークレットに格納されたAPIキーをIDプロバイダのアクセストークンと交換する。
// 身元トークン→クライアントトークン→シークレット→アクセストークンの順に、すべて逐次実行する。
func (e *Exchanger) ExchangeForAccessToken(ctx context.Context, identityToken, identityProviderEndpoint, secretPath string, b Backend) (*AccessToken, error) {
	secret, err := e.FetchSecret(ctx, identityToken, secretPath, b)
	if err != nil {
		return nil, err
	}

	apiKey, ok := secret.APIKey()
	if !ok {
		return nil, ErrMissingAPIKey
	}

	log := e.logger(ctx, OpExchangeToken)
	log.Debug("APIキーをアクセストークンと交換します", zap.String("endpoint", identityProviderEndpoint))

	start := time.Now()
	token, err := e.exchange(ctx, identityProviderEndpoint, apiKey)
	e.observe(OpExchangeToken, err, start)
	if err != nil {
		return nil, err
	}

	log.Debug("アクセストークンを取得しました",
		zap.String("token_type", token.TokenType),
		zap.Int64("expires_in", token.ExpiresIn),
	)
	return token, nil
}

// exchange はトークン交換の呼び出しと応答の検証を行う。
func (e *Exchanger) exchange(ctx context.Context, endpoint, apiKey string) (*AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", APIKeyGrantType)
	form.Set("apikey", apiKey)
	header := http.Header{}
	header.Set("Accept", "application/json")

	resp, err := e.iam.PostForm(ctx, endpoint, form, header)
	if err != nil {
		return nil, &TransportError{Op: OpExchangeToken, URL: endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: OpExchangeToken, URL: endpoint, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var body tokenResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, &MalformedResponseError{Op: OpExchangeToken, Err: err}
	}
	if body.AccessToken == "" {
		return nil, &MalformedResponseError{Op: OpExchangeToken, Field: "access_token"}
	}

	return &AccessToken{
		Token:     body.AccessToken,
		TokenType: body.TokenType,
		ExpiresIn: body.ExpiresIn,
	}, nil
}

// logger はリクエストIDと呼び出し種類を付与したロガーを返す。
func (e *Exchanger) logger(ctx context.Context, op string) *zap.Logger {
	return e.log.With(
		zap.String("request_id", httpclient.RequestIDFrom(ctx)),
		zap.String("operation", op),
	)
}

// observe は外部呼び出しの結果をメトリクスに記録する。
func (e *Exchanger) observe(op string, err error, start time.Time) {
	e.metrics.ObserveOutboundCall(op, Outcome(err), time.Since(start))
}

// isEmptyJSON はボディが空またはnullかどうかを判定する。
func isEmptyJSON(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
