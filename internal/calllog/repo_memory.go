package calllog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory Store for tests and early development.
type MemoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]CallLog
	nextID int64
	clock  func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[int64]CallLog{}, clock: time.Now}
}

// WithClock overrides the clock used for created_at/updated_at.
func (r *MemoryRepo) WithClock(clock func() time.Time) *MemoryRepo {
	r.clock = clock
	return r
}

func (r *MemoryRepo) Create(ctx context.Context, in NewCall) (CallLog, error) {
	if in.CallerID <= 0 || in.ReceiverID <= 0 {
		return CallLog{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.clock()
	c := CallLog{
		ID:         r.nextID,
		RoomID:     in.RoomID,
		CallerID:   in.CallerID,
		ReceiverID: in.ReceiverID,
		Status:     StatusMissed,
		CallType:   ParseCallType(string(in.CallType)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.rows[c.ID] = c
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) update(id int64, fn func(c *CallLog)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = r.clock()
	r.rows[id] = c
	return nil
}

func (r *MemoryRepo) MarkAnswered(ctx context.Context, id int64, at time.Time) error {
	return r.update(id, func(c *CallLog) {
		c.Status = StatusAnswered
		c.StartedAt = &at
	})
}

func (r *MemoryRepo) MarkEnded(ctx context.Context, id int64, status Status, at time.Time) error {
	if !status.Terminal() {
		return ErrInvalidArgument
	}
	return r.update(id, func(c *CallLog) {
		zero := 0
		c.Status = status
		c.EndedAt = &at
		c.Duration = &zero
	})
}

func (r *MemoryRepo) Finish(ctx context.Context, id int64, at time.Time) error {
	return r.update(id, func(c *CallLog) {
		d := durationSeconds(c.StartedAt, at)
		c.EndedAt = &at
		c.Duration = &d
	})
}

func (r *MemoryRepo) IncrementChunks(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.update(id, func(c *CallLog) {
		c.RecordingChunks++
		n = c.RecordingChunks
	})
	return n, err
}

func (r *MemoryRepo) RequestRecording(ctx context.Context, id int64) error {
	return r.update(id, func(c *CallLog) { c.RecordingProcessing = true })
}

func (r *MemoryRepo) CompleteRecording(ctx context.Context, id int64, rec Recording) error {
	return r.update(id, func(c *CallLog) {
		size := rec.Size
		c.RecordingPath = rec.Path
		c.RecordingSize = &size
		c.RecordingMimeType = rec.MimeType
		c.HasRecording = true
		c.RecordingProcessing = false
	})
}

func (r *MemoryRepo) FailRecording(ctx context.Context, id int64) error {
	return r.update(id, func(c *CallLog) {
		c.RecordingProcessing = false
		c.HasRecording = false
	})
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, 0)
	for _, c := range r.rows {
		if f.UserID > 0 && !c.IsParticipant(f.UserID) {
			continue
		}
		if f.RoomID > 0 && c.RoomID != f.RoomID {
			continue
		}
		if f.MissedOnly {
			if c.Status != StatusMissed || (f.UserID > 0 && c.ReceiverID != f.UserID) {
				continue
			}
		}
		if !f.From.IsZero() && c.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !c.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []CallLog{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
