package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/secretprovider/internal/audit"
	"github.com/nao1215/secretprovider/internal/config"
	"github.com/nao1215/secretprovider/internal/exchanger"
	"github.com/nao1215/secretprovider/internal/identity"
	"github.com/nao1215/secretprovider/internal/metrics"
	"github.com/nao1215/secretprovider/pkg/httpclient"
	"github.com/nao1215/secretprovider/pkg/middleware"
)

// serviceName はヘルスチェックで返すサービス名。
const serviceName = "secret-provider"

// Server はsecret-providerのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port int
	// vaultAddress はシークレットストアのベースURL。
	vaultAddress string
	// vaultPath はJWTログインのパス。
	vaultPath string
	// iamEndpoint はIDプロバイダのトークン交換エンドポイント。
	iamEndpoint string
	// exchanger はシークレットストアとIDプロバイダへの外部呼び出しを行う。
	exchanger *exchanger.Exchanger
	// resolver は身元トークンを解決する。
	resolver *identity.Resolver
	// recorder はアクセスの監査ログを記録する。
	recorder audit.Recorder
	// store は監査ログが有効な場合のみ設定され、Closeで閉じる。
	store *audit.Store
	// metrics はメトリクス。無効な場合はnil。
	metrics *metrics.Metrics
	// log は構造化ロガー。
	log *zap.Logger
	// shutdownTimeout はグレースフルシャットダウンの待機時間。
	shutdownTimeout time.Duration
}

// NewServer は設定から新しいサーバーを生成する。
// 監査ログが有効な場合はデータベースを開くため、使用後はCloseを呼び出すこと。
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	vaultClient, err := httpclient.NewWithTransport("", cfg.Vault.TLS, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("シークレットストア用クライアントの生成に失敗: %w", err)
	}
	iamClient, err := httpclient.NewWithTransport("", cfg.IAM.TLS, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("IDプロバイダ用クライアントの生成に失敗: %w", err)
	}

	var resolverOpts []identity.Option
	if cfg.JWTEnv != "" {
		resolverOpts = append(resolverOpts, identity.WithEnvFallback(cfg.JWTEnv))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	s := &Server{
		router:          gin.New(),
		port:            cfg.Port,
		vaultAddress:    cfg.VaultAddress,
		vaultPath:       cfg.VaultPath,
		iamEndpoint:     cfg.IAMEndpoint,
		exchanger:       exchanger.New(vaultClient, iamClient, log, m),
		resolver:        identity.NewResolver(cfg.JWTLocation, resolverOpts...),
		recorder:        audit.Nop{},
		metrics:         m,
		log:             log,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	if cfg.Audit.Enabled {
		store, err := audit.Open(ctx, cfg.Audit.Path, log)
		if err != nil {
			return nil, fmt.Errorf("監査ログの初期化に失敗: %w", err)
		}
		s.store = store
		s.recorder = store
	}

	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(log))
	s.router.Use(middleware.AccessLog(log))
	s.setupRoutes()

	log.Info("外部呼び出しの設定",
		zap.String("vault_address", s.vaultAddress),
		zap.String("vault_path", s.vaultPath),
		zap.String("iam_endpoint", s.iamEndpoint),
		zap.String("jwt_location", s.resolver.Location()),
		zap.String("jwt_env", cfg.JWTEnv),
		zap.Duration("timeout", vaultClient.Timeout()),
		zap.Bool("audit_enabled", s.store != nil),
	)
	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("secret-providerを起動します", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("secret-providerを停止します", zap.Duration("shutdown_timeout", s.shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}
	return nil
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/get-secret", s.handleGetSecret())
	s.router.GET("/get-iam-token", s.handleGetIAMToken())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}
