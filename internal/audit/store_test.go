package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/secretprovider/pkg/event"
)

// setupTestStore はテスト用の一時ディレクトリにStoreを作成する。
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatalf("Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestEvent はテスト用のアクセスイベントを生成する。
func newTestEvent(t *testing.T, kind event.Kind, access event.Access, data any) *event.Event {
	t.Helper()

	ev, err := event.New(kind, access, data)
	if err != nil {
		t.Fatalf("event.New()でエラーが発生: %v", err)
	}
	return ev
}

// TestStore はStoreを検証する。
func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("記録したイベントを取得できること", func(t *testing.T) {
		t.Parallel()

		store := setupTestStore(t)
		ctx := context.Background()

		ev := newTestEvent(t, event.KindSecretRead, event.Access{
			RequestID:  "req-1",
			SecretName: "/v1/kv/demo",
			Role:       "demo",
			Subject:    "system:serviceaccount:demo:app",
			Outcome:    "ok",
			StatusCode: 200,
		}, event.SecretReadData{Keys: []string{"access_key", "secret_key"}})

		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record()でエラーが発生: %v", err)
		}

		events, err := store.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent()でエラーが発生: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("件数 = %d, want 1", len(events))
		}

		got := events[0]
		if got.ID != ev.ID || got.RequestID != "req-1" || got.Kind != event.KindSecretRead {
			t.Errorf("got = %+v", got)
		}
		if got.SecretName != "/v1/kv/demo" || got.Role != "demo" || got.Subject != "system:serviceaccount:demo:app" {
			t.Errorf("got = %+v", got)
		}
		if got.Outcome != "ok" || got.StatusCode != 200 {
			t.Errorf("Outcome = %q, StatusCode = %d", got.Outcome, got.StatusCode)
		}
		if got.CreatedAt.Sub(ev.CreatedAt).Abs() > time.Millisecond {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, ev.CreatedAt)
		}

		data, err := event.DecodeData[event.SecretReadData](got)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if len(data.Keys) != 2 {
			t.Errorf("Keys = %v", data.Keys)
		}
	})

	t.Run("データなしのイベントを記録できること", func(t *testing.T) {
		t.Parallel()

		store := setupTestStore(t)
		ctx := context.Background()

		ev := newTestEvent(t, event.KindTokenExchange, event.Access{
			RequestID:  "req-2",
			Outcome:    event.OutcomeMissingParameter,
			StatusCode: 400,
		}, nil)
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record()でエラーが発生: %v", err)
		}

		events, err := store.Recent(ctx, 0)
		if err != nil {
			t.Fatalf("Recent()でエラーが発生: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("件数 = %d, want 1", len(events))
		}
		if len(events[0].Data) != 0 {
			t.Errorf("Data = %s, want empty", events[0].Data)
		}
		if events[0].SecretName != "" || events[0].Role != "" {
			t.Errorf("got = %+v", events[0])
		}
	})

	t.Run("新しい順にlimit件を返すこと", func(t *testing.T) {
		t.Parallel()

		store := setupTestStore(t)
		ctx := context.Background()

		base := time.Now().UTC()
		for i, id := range []string{"req-a", "req-b", "req-c"} {
			ev := newTestEvent(t, event.KindSecretRead, event.Access{RequestID: id, Outcome: "ok", StatusCode: 200}, nil)
			ev.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := store.Record(ctx, ev); err != nil {
				t.Fatalf("Record()でエラーが発生: %v", err)
			}
		}

		events, err := store.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent()でエラーが発生: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("件数 = %d, want 2", len(events))
		}
		if events[0].RequestID != "req-c" || events[1].RequestID != "req-b" {
			t.Errorf("順序 = [%s, %s], want [req-c, req-b]", events[0].RequestID, events[1].RequestID)
		}
	})

	t.Run("同時に記録しても失敗しないこと", func(t *testing.T) {
		t.Parallel()

		store := setupTestStore(t)
		ctx := context.Background()

		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ev, err := event.New(event.KindSecretRead, event.Access{RequestID: "req", Outcome: "ok", StatusCode: 200}, nil)
				if err != nil {
					errs <- err
					return
				}
				errs <- store.Record(ctx, ev)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("Record()でエラーが発生: %v", err)
			}
		}

		events, err := store.Recent(ctx, 0)
		if err != nil {
			t.Fatalf("Recent()でエラーが発生: %v", err)
		}
		if len(events) != n {
			t.Errorf("件数 = %d, want %d", len(events), n)
		}
	})

	t.Run("同じデータベースを開き直してもマイグレーションが失敗しないこと", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "audit.db")
		ctx := context.Background()
		first, err := Open(ctx, path, nil)
		if err != nil {
			t.Fatalf("1回目のOpen()でエラーが発生: %v", err)
		}
		if err := first.Record(ctx, newTestEvent(t, event.KindSecretRead, event.Access{RequestID: "r", Outcome: "ok"}, nil)); err != nil {
			t.Fatalf("Record()でエラーが発生: %v", err)
		}
		_ = first.Close()

		second, err := Open(ctx, path, nil)
		if err != nil {
			t.Fatalf("2回目のOpen()でエラーが発生: %v", err)
		}
		defer func() { _ = second.Close() }()

		events, err := second.Recent(ctx, 0)
		if err != nil {
			t.Fatalf("Recent()でエラーが発生: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("件数 = %d, want 1", len(events))
		}
	})
}

// TestNop はNopを検証する。
func TestNop(t *testing.T) {
	t.Parallel()

	var r Recorder = Nop{}
	if err := r.Record(context.Background(), &event.Event{}); err != nil {
		t.Errorf("Record()でエラーが発生: %v", err)
	}
}
