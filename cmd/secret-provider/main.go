// secret-providerのエントリポイント。
// 呼び出し元の身元トークンでシークレットストアにログインし、シークレットまたは
// IDプロバイダのアクセストークンをHTTPで返す。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/secretprovider/internal/audit"
	"github.com/nao1215/secretprovider/internal/config"
	"github.com/nao1215/secretprovider/internal/gateway"
	"github.com/nao1215/secretprovider/internal/logger"
)

// options はコマンドライン引数。
type options struct {
	configPath string
	logging    string
	port       int
	// auditTail が正の場合はサーバーを起動せず、監査ログの新しい順にこの件数を出力する。
	auditTail int
}

// parseFlags はコマンドライン引数を解析する。
// -l/-loggingはinfoとdebugのみ受け付ける。
func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("secret-provider", flag.ContinueOnError)
	fs.SetOutput(output)
	for _, name := range []string{"c", "config"} {
		fs.StringVar(&opts.configPath, name, "", "設定ファイルのパス（省略時は開発用の既定値を使用）")
	}
	for _, name := range []string{"l", "logging"} {
		fs.StringVar(&opts.logging, name, "", "ログレベル（info, debug）")
	}
	for _, name := range []string{"p", "port"} {
		fs.IntVar(&opts.port, name, 0, "待ち受けるポート番号")
	}
	fs.IntVar(&opts.auditTail, "audit-tail", 0, "監査ログの新しい順に指定件数をJSON Linesで出力して終了する")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch opts.logging {
	case "", "info", "debug":
	default:
		return nil, fmt.Errorf("-logging には info または debug を指定してください: %q", opts.logging)
	}
	if opts.auditTail < 0 {
		return nil, fmt.Errorf("-audit-tail には0以上を指定してください: %d", opts.auditTail)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("不明な引数: %v", fs.Args())
	}
	return opts, nil
}

// loadConfig は設定を読み込み、コマンドライン引数で上書きする。
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logging != "" {
		cfg.Logging.Level = opts.logging
	}
	if opts.port != 0 {
		cfg.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logDefaults は開発用の既定値で起動したことを設定値とともに記録する。
func logDefaults(log *zap.Logger, cfg *config.Config) {
	log.Info("設定ファイルが指定されていないため開発用の既定値を使用します")
	log.Info("既定値", zap.Int("port", cfg.Port))
	log.Info("既定値", zap.String("vault_address", cfg.VaultAddress))
	log.Info("既定値", zap.String("vault_path", cfg.VaultPath))
	log.Info("既定値", zap.String("iam_endpoint", cfg.IAMEndpoint))
	log.Info("既定値", zap.String("jwt_location", cfg.JWTLocation))
	log.Info("既定値", zap.Duration("timeout", cfg.Timeout))
}

// printAuditTail は監査ログの新しい順にlimit件をJSON Linesで出力する。
// データベースファイルが無い場合は新規作成せずエラーにする。
func printAuditTail(ctx context.Context, path string, limit int, out io.Writer, log *zap.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("監査ログを開けません: %w", err)
	}

	store, err := audit.Open(ctx, path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("監査ログの出力に失敗: %w", err)
		}
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("ロガーの初期化に失敗: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if opts.auditTail > 0 {
		return printAuditTail(ctx, cfg.Audit.Path, opts.auditTail, stdout, log)
	}

	if opts.configPath == "" {
		logDefaults(log, cfg)
	}
	log.Info("secret-providerを初期化します",
		zap.String("config_file", opts.configPath),
		zap.String("log_level", cfg.Logging.Level),
		zap.Bool("audit_enabled", cfg.Audit.Enabled),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)

	server, err := gateway.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Warn("サーバーのリソース解放に失敗しました", zap.Error(err))
		}
	}()

	return server.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "secret-provider: %v\n", err)
		stop()
		os.Exit(1)
	}
}
