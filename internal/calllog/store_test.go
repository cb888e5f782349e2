package calllog

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"chatcall/pkg/utils"

	_ "modernc.org/sqlite"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := utils.OpenSQL(context.Background(), "sqlite", ":memory:", utils.PoolConfig{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStore(db, DialectSQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Running it twice must be harmless.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return s
}

func stores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryRepo() },
		"sqlite": newSQLiteStore,
	}
}

func TestStore_CreateDefaults(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			c, err := s.Create(ctx, NewCall{RoomID: 3, CallerID: 1, ReceiverID: 2, CallType: CallTypeVideo})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			got, err := s.Get(ctx, c.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != StatusMissed || got.CallType != CallTypeVideo {
				t.Fatalf("unexpected defaults: %+v", got)
			}
			if got.StartedAt != nil || got.EndedAt != nil || got.Duration != nil {
				t.Fatalf("expected null timing, got %+v", got)
			}
			if got.HasRecording || got.RecordingProcessing || got.RecordingChunks != 0 {
				t.Fatalf("expected empty recording fields, got %+v", got)
			}

			second, err := s.Create(ctx, NewCall{RoomID: 3, CallerID: 1, ReceiverID: 2})
			if err != nil {
				t.Fatalf("create second: %v", err)
			}
			if second.ID == c.ID {
				t.Fatalf("expected a new id for a new attempt")
			}
			if second.CallType != CallTypeAudio {
				t.Fatalf("expected audio default, got %q", second.CallType)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			if _, err := s.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.RequestRecording(context.Background(), 999); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on update, got %v", err)
			}
			if _, err := s.IncrementChunks(context.Background(), 999); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on increment, got %v", err)
			}
		})
	}
}

func TestStore_AnswerThenFinishComputesDuration(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			c, _ := s.Create(ctx, NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})

			start := time.Unix(1700000000, 0).UTC()
			if err := s.MarkAnswered(ctx, c.ID, start); err != nil {
				t.Fatalf("answer: %v", err)
			}
			if err := s.Finish(ctx, c.ID, start.Add(65*time.Second+900*time.Millisecond)); err != nil {
				t.Fatalf("finish: %v", err)
			}
			got, _ := s.Get(ctx, c.ID)
			if got.Status != StatusAnswered {
				t.Fatalf("expected status answered to be kept, got %q", got.Status)
			}
			if got.StartedAt == nil || !got.StartedAt.Equal(start) {
				t.Fatalf("unexpected started_at %v", got.StartedAt)
			}
			if got.Duration == nil || *got.Duration != 65 {
				t.Fatalf("expected duration 65, got %v", got.Duration)
			}
		})
	}
}

func TestStore_FinishNeverStartedIsZero(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			c, _ := s.Create(ctx, NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})
			if err := s.Finish(ctx, c.ID, time.Now()); err != nil {
				t.Fatalf("finish: %v", err)
			}
			got, _ := s.Get(ctx, c.ID)
			if got.Duration == nil || *got.Duration != 0 {
				t.Fatalf("expected zero duration, got %v", got.Duration)
			}
			if got.EndedAt == nil {
				t.Fatalf("expected ended_at")
			}
		})
	}
}

func TestStore_MarkEnded(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			c, _ := s.Create(ctx, NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})
			if err := s.MarkEnded(ctx, c.ID, StatusAnswered, time.Now()); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument for non-terminal status, got %v", err)
			}
			if err := s.MarkEnded(ctx, c.ID, StatusRejected, time.Now()); err != nil {
				t.Fatalf("mark ended: %v", err)
			}
			got, _ := s.Get(ctx, c.ID)
			if got.Status != StatusRejected || got.Duration == nil || *got.Duration != 0 || got.EndedAt == nil {
				t.Fatalf("unexpected row: %+v", got)
			}
		})
	}
}

func TestStore_RecordingLifecycle(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			c, _ := s.Create(ctx, NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})

			for want := 1; want <= 3; want++ {
				n, err := s.IncrementChunks(ctx, c.ID)
				if err != nil {
					t.Fatalf("increment: %v", err)
				}
				if n != want {
					t.Fatalf("expected chunk %d, got %d", want, n)
				}
			}

			if err := s.RequestRecording(ctx, c.ID); err != nil {
				t.Fatalf("request: %v", err)
			}
			got, _ := s.Get(ctx, c.ID)
			if !got.RecordingProcessing {
				t.Fatalf("expected processing flag")
			}

			if err := s.CompleteRecording(ctx, c.ID, Recording{Path: "call_1/recording.webm", Size: 1234, MimeType: "audio/webm"}); err != nil {
				t.Fatalf("complete: %v", err)
			}
			got, _ = s.Get(ctx, c.ID)
			if !got.HasRecording || got.RecordingProcessing {
				t.Fatalf("unexpected flags after complete: %+v", got)
			}
			if got.RecordingSize == nil || *got.RecordingSize != 1234 || got.RecordingMimeType != "audio/webm" {
				t.Fatalf("unexpected recording fields: %+v", got)
			}
			if got.RecordingChunks != 3 {
				t.Fatalf("expected chunk counter kept, got %d", got.RecordingChunks)
			}

			_ = s.RequestRecording(ctx, c.ID)
			if err := s.FailRecording(ctx, c.ID); err != nil {
				t.Fatalf("fail: %v", err)
			}
			got, _ = s.Get(ctx, c.ID)
			if got.HasRecording || got.RecordingProcessing {
				t.Fatalf("expected flags cleared, got %+v", got)
			}
		})
	}
}

func TestStore_RecordingUpdateKeepsStatus(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			c, _ := s.Create(ctx, NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})
			_ = s.MarkAnswered(ctx, c.ID, time.Now())
			_ = s.CompleteRecording(ctx, c.ID, Recording{Path: "p", Size: 1, MimeType: "audio/webm"})
			got, _ := s.Get(ctx, c.ID)
			if got.Status != StatusAnswered {
				t.Fatalf("expected answered status to survive recording update, got %q", got.Status)
			}
		})
	}
}

func TestStore_ListFilters(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			a, _ := s.Create(ctx, NewCall{RoomID: 10, CallerID: 1, ReceiverID: 2})
			b, _ := s.Create(ctx, NewCall{RoomID: 10, CallerID: 2, ReceiverID: 1})
			c, _ := s.Create(ctx, NewCall{RoomID: 20, CallerID: 3, ReceiverID: 4})
			_ = s.MarkAnswered(ctx, a.ID, time.Now())

			mine, err := s.List(ctx, Filter{UserID: 1})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(mine) != 2 {
				t.Fatalf("expected 2 calls for user 1, got %d", len(mine))
			}
			if mine[0].ID != b.ID {
				t.Fatalf("expected newest first, got %d", mine[0].ID)
			}

			missed, _ := s.List(ctx, Filter{UserID: 1, MissedOnly: true})
			if len(missed) != 1 || missed[0].ID != b.ID {
				t.Fatalf("expected only call %d as missed for user 1, got %+v", b.ID, missed)
			}

			room, _ := s.List(ctx, Filter{RoomID: 20})
			if len(room) != 1 || room[0].ID != c.ID {
				t.Fatalf("expected room 20 to hold call %d, got %+v", c.ID, room)
			}

			page, _ := s.List(ctx, Filter{UserID: 1, Limit: 1, Offset: 1})
			if len(page) != 1 || page[0].ID != a.ID {
				t.Fatalf("expected second page to hold call %d, got %+v", a.ID, page)
			}
		})
	}
}

func TestCanAccess(t *testing.T) {
	s := NewMemoryRepo()
	ctx := context.Background()
	c, _ := s.Create(ctx, NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})

	for _, uid := range []int64{1, 2} {
		if _, err := CanAccess(ctx, s, c.ID, uid); err != nil {
			t.Fatalf("expected access for %d, got %v", uid, err)
		}
	}
	if _, err := CanAccess(ctx, s, c.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for outsider, got %v", err)
	}
	if _, err := CanAccess(ctx, s, 42, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing call, got %v", err)
	}
}

func TestSQLStore_ScanNulls(t *testing.T) {
	var v sql.NullInt64
	if nullMillis(v) != nil {
		t.Fatalf("expected nil time for null column")
	}
	v = sql.NullInt64{Int64: 1700000000123, Valid: true}
	if got := nullMillis(v); got == nil || got.UnixMilli() != 1700000000123 {
		t.Fatalf("unexpected time %v", got)
	}
}
