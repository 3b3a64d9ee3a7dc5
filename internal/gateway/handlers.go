package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/secretprovider/internal/exchanger"
	"github.com/nao1215/secretprovider/internal/identity"
	"github.com/nao1215/secretprovider/pkg/event"
	"github.com/nao1215/secretprovider/pkg/middleware"
)

// accessRequest は検証済みのリクエスト内容。
type accessRequest struct {
	secretName string
	role       string
	token      string
	subject    string
	requestID  string
}

// handleGetSecret はシークレットを読み取ってJSONで返すハンドラを返す。
func (s *Server) handleGetSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ar, err := s.prepare(c)
		if err != nil {
			s.reject(c, event.KindSecretRead, ar, err, start)
			return
		}

		secret, err := s.exchanger.FetchSecret(c.Request.Context(), ar.token, ar.secretName, s.backend(ar.role))
		if err != nil {
			s.logBackendError(ar, "シークレットの取得に失敗しました", err)
			c.AbortWithStatus(http.StatusBadRequest)
			s.finish(c, event.KindSecretRead, ar, exchanger.Outcome(err), nil, start)
			return
		}

		c.JSON(http.StatusOK, secret)
		s.finish(c, event.KindSecretRead, ar, exchanger.OutcomeOK, event.SecretReadData{Keys: secret.Keys()}, start)
	}
}

// handleGetIAMToken はAPIキーをアクセストークンと交換し、トークンをそのまま返すハンドラを返す。
func (s *Server) handleGetIAMToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ar, err := s.prepare(c)
		if err != nil {
			s.reject(c, event.KindTokenExchange, ar, err, start)
			return
		}

		token, err := s.exchanger.ExchangeForAccessToken(c.Request.Context(), ar.token, s.iamEndpoint, ar.secretName, s.backend(ar.role))
		if err != nil {
			s.logBackendError(ar, "アクセストークンの取得に失敗しました", err)
			c.AbortWithStatus(http.StatusUnauthorized)
			s.finish(c, event.KindTokenExchange, ar, exchanger.Outcome(err), nil, start)
			return
		}

		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(token.Token))
		s.finish(c, event.KindTokenExchange, ar, exchanger.OutcomeOK, event.TokenExchangeData{
			TokenType: token.TokenType,
			ExpiresIn: token.ExpiresIn,
		}, start)
	}
}

// prepare はクエリパラメータを検証し、身元トークンを解決する。
// 外部呼び出しはパラメータの検証が済むまで行わない。
// エラーの場合も取得できた範囲の内容を返す。
func (s *Server) prepare(c *gin.Context) (*accessRequest, error) {
	ar := &accessRequest{
		secretName: c.Query(paramSecretName),
		role:       c.Query(paramRole),
		requestID:  middleware.GetRequestID(c),
	}

	var missing []string
	for _, name := range requiredParams {
		if _, ok := c.GetQuery(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ar, &MissingParameterError{Names: missing}
	}

	token, err := s.resolver.Resolve(c.Query(paramJWT))
	if err != nil {
		return ar, err
	}
	ar.token = token
	ar.subject = identity.Subject(token)

	s.log.Debug("リクエストを受け付けました",
		zap.String("request_id", ar.requestID),
		zap.String("path", c.Request.URL.Path),
		zap.String("secret_name", ar.secretName),
		zap.String("role", ar.role),
		zap.String("subject", ar.subject),
		zap.String("jwt", identity.Mask(token)),
	)
	return ar, nil
}

// reject は外部呼び出しの前に拒否したリクエストにボディなしの400を返す。
func (s *Server) reject(c *gin.Context, kind event.Kind, ar *accessRequest, err error, start time.Time) {
	outcome := exchanger.OutcomeError
	var missingErr *MissingParameterError
	switch {
	case errors.As(err, &missingErr):
		outcome = event.OutcomeMissingParameter
	case errors.Is(err, identity.ErrTokenUnavailable):
		outcome = event.OutcomeTokenUnavailable
	}

	s.log.Warn("リクエストを拒否しました",
		zap.String("request_id", ar.requestID),
		zap.String("path", c.Request.URL.Path),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
	c.AbortWithStatus(http.StatusBadRequest)
	s.finish(c, kind, ar, outcome, nil, start)
}

// logBackendError は外部呼び出しの失敗の詳細をサーバー側のログに出力する。
func (s *Server) logBackendError(ar *accessRequest, msg string, err error) {
	fields := []zap.Field{
		zap.String("request_id", ar.requestID),
		zap.String("secret_name", ar.secretName),
		zap.String("role", ar.role),
		zap.String("outcome", exchanger.Outcome(err)),
		zap.Error(err),
	}
	var transportErr *exchanger.TransportError
	if errors.As(err, &transportErr) {
		fields = append(fields,
			zap.String("operation", transportErr.Op),
			zap.Int("status_code", transportErr.StatusCode),
		)
	}
	s.log.Error(msg, fields...)
}

// finish はメトリクスと監査ログを記録する。
// 監査ログの記録に失敗してもレスポンスには影響させない。
func (s *Server) finish(c *gin.Context, kind event.Kind, ar *accessRequest, outcome string, data any, start time.Time) {
	status := c.Writer.Status()
	s.metrics.ObserveRequest(c.FullPath(), status, time.Since(start))

	ev, err := event.New(kind, event.Access{
		RequestID:  ar.requestID,
		SecretName: ar.secretName,
		Role:       ar.role,
		Subject:    ar.subject,
		Outcome:    outcome,
		StatusCode: status,
	}, data)
	if err == nil {
		// 呼び出し元が切断しても監査ログは残す
		err = s.recorder.Record(context.WithoutCancel(c.Request.Context()), ev)
	}
	if err != nil {
		s.log.Warn("監査ログの記録に失敗しました",
			zap.String("request_id", ar.requestID),
			zap.Error(err),
		)
	}
}

// backend はリクエストのロールを含むシークレットストアの接続先を返す。
func (s *Server) backend(role string) exchanger.Backend {
	return exchanger.Backend{
		Address:  s.vaultAddress,
		AuthPath: s.vaultPath,
		Role:     role,
	}
}
