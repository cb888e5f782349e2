package calllog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calllog: not found")
	ErrInvalidArgument = errors.New("calllog: invalid argument")
)

// Store persists CallLogs.
//
// Every mutation is a single atomic statement touching only the fields it
// names, so a recording update never clobbers a concurrent status update.
// Mutations on a missing id return ErrNotFound.
type Store interface {
	Create(ctx context.Context, in NewCall) (CallLog, error)
	Get(ctx context.Context, id int64) (CallLog, error)

	// MarkAnswered sets status answered and started_at.
	MarkAnswered(ctx context.Context, id int64, at time.Time) error
	// MarkEnded sets a terminal status with ended_at and a zero duration.
	MarkEnded(ctx context.Context, id int64, status Status, at time.Time) error
	// Finish sets ended_at and the duration since started_at. Status is unchanged.
	Finish(ctx context.Context, id int64, at time.Time) error

	// IncrementChunks bumps the chunk counter and returns the new value.
	IncrementChunks(ctx context.Context, id int64) (int, error)
	RequestRecording(ctx context.Context, id int64) error
	CompleteRecording(ctx context.Context, id int64, rec Recording) error
	FailRecording(ctx context.Context, id int64) error

	// List returns matching rows, newest first.
	List(ctx context.Context, f Filter) ([]CallLog, error)
}

// CanAccess loads the call and reports whether userID may see it.
// A call the user cannot see is reported as ErrNotFound.
func CanAccess(ctx context.Context, s Store, id, userID int64) (CallLog, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return CallLog{}, err
	}
	if !c.IsParticipant(userID) {
		return CallLog{}, ErrNotFound
	}
	return c, nil
}
