package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatcall/internal/calllog"
)

type serviceFixture struct {
	store   *calllog.MemoryRepo
	storage *Storage
	clock   *fakeClock
	fired   []int64
	svc     *Service
	call    calllog.CallLog
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	storage, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	f := &serviceFixture{store: calllog.NewMemoryRepo(), storage: storage, clock: &fakeClock{}}
	sched := NewScheduler(func(id int64) { f.fired = append(f.fired, id) }).WithAfterFunc(f.clock.AfterFunc)
	f.svc = NewService(f.store, storage, sched, discardLogger())
	f.call, _ = f.store.Create(context.Background(), calllog.NewCall{RoomID: 1, CallerID: 1, ReceiverID: 2})
	return f
}

func (f *serviceFixture) pendingDelays() []time.Duration {
	var out []time.Duration
	for _, t := range f.clock.Active() {
		out = append(out, t.delay)
	}
	return out
}

func TestService_UploadWritesNumberedChunks(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for i, body := range []string{"one", "two"} {
		uploader := f.call.CallerID
		if i == 1 {
			uploader = f.call.ReceiverID
		}
		idx, err := f.svc.UploadChunk(ctx, f.call.ID, uploader, strings.NewReader(body))
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		if idx != i+1 {
			t.Fatalf("expected chunk index %d, got %d", i+1, idx)
		}
	}

	data, err := os.ReadFile(filepath.Join(f.storage.CallDir(f.call.ID), "chunk_2.webm"))
	if err != nil || string(data) != "two" {
		t.Fatalf("unexpected chunk_2 contents %q err=%v", data, err)
	}
	if len(f.pendingDelays()) != 0 {
		t.Fatalf("upload during a live call must not schedule a merge")
	}
}

func TestService_OutsiderDenied(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UploadChunk(ctx, f.call.ID, 99, strings.NewReader("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for upload, got %v", err)
	}
	if err := f.svc.Finalize(ctx, f.call.ID, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for finalize, got %v", err)
	}
	if _, err := f.svc.Open(ctx, f.call.ID, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for open, got %v", err)
	}
	if _, err := os.Stat(f.storage.CallDir(f.call.ID)); !os.IsNotExist(err) {
		t.Fatalf("denied upload must not create the call directory")
	}
	got, _ := f.store.Get(ctx, f.call.ID)
	if got.RecordingChunks != 0 || got.RecordingProcessing {
		t.Fatalf("denied requests must not touch the call, got %+v", got)
	}
}

func TestService_UploadAfterEndReschedules(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_ = f.store.MarkAnswered(ctx, f.call.ID, time.Now())
	_ = f.store.Finish(ctx, f.call.ID, time.Now())
	if err := f.svc.CallEnded(ctx, f.call.ID); err != nil {
		t.Fatalf("call ended: %v", err)
	}
	if d := f.pendingDelays(); len(d) != 1 || d[0] != CallEndDelay {
		t.Fatalf("expected call-end delay pending, got %v", d)
	}

	if _, err := f.svc.UploadChunk(ctx, f.call.ID, f.call.CallerID, strings.NewReader("late")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if d := f.pendingDelays(); len(d) != 1 || d[0] != UploadDelay {
		t.Fatalf("expected upload delay to replace call-end delay, got %v", d)
	}

	f.clock.FireAll()
	if len(f.fired) != 1 || f.fired[0] != f.call.ID {
		t.Fatalf("expected one merge trigger, got %v", f.fired)
	}
}

func TestService_FinalizeFlagsAndSchedules(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.svc.Finalize(ctx, f.call.ID, f.call.ReceiverID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	got, _ := f.store.Get(ctx, f.call.ID)
	if !got.RecordingProcessing {
		t.Fatalf("expected processing flag after finalize")
	}
	if d := f.pendingDelays(); len(d) != 1 || d[0] != FinalizeDelay {
		t.Fatalf("expected finalize delay pending, got %v", d)
	}
}

func TestService_OpenRequiresMergedFile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Open(ctx, f.call.ID, f.call.CallerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without recording, got %v", err)
	}

	_ = f.store.CompleteRecording(ctx, f.call.ID, calllog.Recording{Path: OutputRel(f.call.ID), Size: 4, MimeType: MimeType})
	if _, err := f.svc.Open(ctx, f.call.ID, f.call.CallerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the file is missing, got %v", err)
	}

	dir := f.storage.CallDir(f.call.ID)
	_ = os.MkdirAll(dir, 0o755)
	_ = os.WriteFile(filepath.Join(dir, OutputName), []byte("webm"), 0o644)
	m, err := f.svc.Open(ctx, f.call.ID, f.call.ReceiverID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.Size != 4 || m.MimeType != MimeType || m.CallID != f.call.ID {
		t.Fatalf("unexpected media %+v", m)
	}
}

func TestStorage_ResolveRejectsEscapes(t *testing.T) {
	s, _ := NewStorage(t.TempDir())
	for _, rel := range []string{"../etc/passwd", "/etc/passwd", "", ".."} {
		if _, err := s.Resolve(rel); err == nil {
			t.Fatalf("expected %q to be rejected", rel)
		}
	}
	if _, err := s.Resolve("call_1/recording.webm"); err != nil {
		t.Fatalf("expected a call path to resolve: %v", err)
	}
}
