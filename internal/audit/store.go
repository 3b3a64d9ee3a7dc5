package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/secretprovider/pkg/event"
	"github.com/nao1215/secretprovider/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// Recorder はアクセスイベントを記録する。
type Recorder interface {
	Record(ctx context.Context, ev *event.Event) error
}

// Nop は何も記録しないRecorder。監査ログが無効な場合に使用する。
type Nop struct{}

// Record は何もしない。
func (Nop) Record(context.Context, *event.Event) error { return nil }

// accessEvent はaccess_eventsテーブルの行。
type accessEvent struct {
	bun.BaseModel `bun:"table:access_events"`

	ID         string    `bun:"id,pk"`
	RequestID  string    `bun:"request_id"`
	Kind       string    `bun:"kind"`
	SecretName string    `bun:"secret_name"`
	Role       string    `bun:"role"`
	Subject    string    `bun:"subject"`
	Outcome    string    `bun:"outcome"`
	StatusCode int       `bun:"status_code"`
	Data       string    `bun:"data,nullzero"`
	CreatedAt  time.Time `bun:"created_at"`
}

// Store はSQLiteに監査ログを保存するRecorder。
type Store struct {
	db *bun.DB
}

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("監査ログデータベースのオープンに失敗: %w", err)
	}
	// SQLiteの書き込みは直列化されるため接続を1つに制限する
	sqlDB.SetMaxOpenConns(1)

	if err := migration.Run(ctx, sqlDB, migrationsFS, "migrations", log); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("監査ログのマイグレーションに失敗: %w", err)
	}

	return &Store{db: bun.NewDB(sqlDB, sqlitedialect.New())}, nil
}

// Record はアクセスイベントを1件保存する。
func (s *Store) Record(ctx context.Context, ev *event.Event) error {
	row := &accessEvent{
		ID:         ev.ID,
		RequestID:  ev.RequestID,
		Kind:       string(ev.Kind),
		SecretName: ev.SecretName,
		Role:       ev.Role,
		Subject:    ev.Subject,
		Outcome:    ev.Outcome,
		StatusCode: ev.StatusCode,
		Data:       string(ev.Data),
		CreatedAt:  ev.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("監査ログの保存に失敗: %w", err)
	}
	return nil
}

// Recent は新しい順に最大limit件のアクセスイベントを返す。
func (s *Store) Recent(ctx context.Context, limit int) ([]*event.Event, error) {
	var rows []accessEvent
	q := s.db.NewSelect().Model(&rows).Order("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("監査ログの取得に失敗: %w", err)
	}

	events := make([]*event.Event, 0, len(rows))
	for _, r := range rows {
		ev := &event.Event{
			ID:         r.ID,
			RequestID:  r.RequestID,
			Kind:       event.Kind(r.Kind),
			SecretName: r.SecretName,
			Role:       r.Role,
			Subject:    r.Subject,
			Outcome:    r.Outcome,
			StatusCode: r.StatusCode,
			CreatedAt:  r.CreatedAt.UTC(),
		}
		if r.Data != "" {
			ev.Data = json.RawMessage(r.Data)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close はデータベースを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}
