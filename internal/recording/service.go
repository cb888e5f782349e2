package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"chatcall/internal/calllog"
	"chatcall/pkg/logger"
)

// Debounce delays per trigger. Chunks can trail the end of signaling, so
// the call-end trigger waits longest.
const (
	UploadDelay   = 2500 * time.Millisecond
	FinalizeDelay = 1 * time.Second
	CallEndDelay  = 5 * time.Second
)

// Service handles chunk uploads and decides when a merge should run.
type Service struct {
	store     calllog.Store
	storage   *Storage
	scheduler *Scheduler
	log       *slog.Logger
}

func NewService(store calllog.Store, storage *Storage, scheduler *Scheduler, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		storage:   storage,
		scheduler: scheduler,
		log:       logger.Component(log, "recording"),
	}
}

// access loads the call for a participant. Unknown calls and outsiders both
// map to ErrNotFound.
func (s *Service) access(ctx context.Context, callID, userID int64) (calllog.CallLog, error) {
	c, err := calllog.CanAccess(ctx, s.store, callID, userID)
	if err != nil {
		if errors.Is(err, calllog.ErrNotFound) {
			return calllog.CallLog{}, ErrNotFound
		}
		return calllog.CallLog{}, err
	}
	return c, nil
}

// UploadChunk stores the next chunk for a call and returns its index.
func (s *Service) UploadChunk(ctx context.Context, callID, userID int64, body io.Reader) (int, error) {
	if body == nil {
		return 0, ErrInvalidArgument
	}
	if _, err := s.access(ctx, callID, userID); err != nil {
		return 0, err
	}

	idx, err := s.store.IncrementChunks(ctx, callID)
	if err != nil {
		return 0, fmt.Errorf("reserve chunk index: %w", err)
	}
	size, err := s.storage.WriteChunk(callID, idx, body)
	if err != nil {
		return 0, err
	}

	// Chunks that trail the end of the call push the pending merge back.
	c, err := s.store.Get(ctx, callID)
	if err != nil {
		return 0, err
	}
	if c.EndedAt != nil && c.RecordingProcessing {
		s.scheduler.Schedule(callID, UploadDelay)
	}
	logger.From(ctx).Debug("recording chunk stored", "call_id", callID, "chunk", idx, "size", size)
	return idx, nil
}

// Finalize is the uploader's explicit last-chunk signal.
func (s *Service) Finalize(ctx context.Context, callID, userID int64) error {
	if _, err := s.access(ctx, callID, userID); err != nil {
		return err
	}
	if err := s.store.RequestRecording(ctx, callID); err != nil {
		return fmt.Errorf("flag recording: %w", err)
	}
	s.scheduler.Schedule(callID, FinalizeDelay)
	return nil
}

// CallEnded flags the call for a merge once signaling has ended it.
func (s *Service) CallEnded(ctx context.Context, callID int64) error {
	if err := s.store.RequestRecording(ctx, callID); err != nil {
		s.log.Warn("flag recording failed", "call_id", callID, "err", err)
		return err
	}
	s.scheduler.Schedule(callID, CallEndDelay)
	return nil
}

// Media locates a merged recording on disk.
type Media struct {
	CallID   int64
	Path     string
	Size     int64
	MimeType string
}

// Open resolves the merged recording for a participant.
func (s *Service) Open(ctx context.Context, callID, userID int64) (Media, error) {
	c, err := s.access(ctx, callID, userID)
	if err != nil {
		return Media{}, err
	}
	if !c.HasRecording || c.RecordingPath == "" {
		return Media{}, ErrNotFound
	}
	path, err := s.storage.Resolve(c.RecordingPath)
	if err != nil {
		return Media{}, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Media{}, ErrNotFound
	}
	mime := c.RecordingMimeType
	if mime == "" {
		mime = MimeType
	}
	return Media{CallID: callID, Path: path, Size: info.Size(), MimeType: mime}, nil
}
