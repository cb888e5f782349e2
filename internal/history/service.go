package history

import (
	"context"
	"errors"
	"fmt"

	"chatcall/internal/calllog"
	"chatcall/internal/directory"
)

var ErrInvalidRequest = errors.New("history: invalid request")

// Service is the read side over call logs. Every query is scoped to calls the
// acting user took part in.
type Service struct {
	store calllog.Store
	dir   directory.Directory
}

func NewService(store calllog.Store, dir directory.Directory) *Service {
	return &Service{store: store, dir: dir}
}

// History lists every call the user placed or received, newest first.
func (s *Service) History(ctx context.Context, userID int64, page Page) ([]Entry, error) {
	if userID <= 0 {
		return nil, ErrInvalidRequest
	}
	return s.list(ctx, calllog.Filter{UserID: userID}, page)
}

// Missed lists missed calls the user received.
func (s *Service) Missed(ctx context.Context, userID int64, page Page) ([]Entry, error) {
	if userID <= 0 {
		return nil, ErrInvalidRequest
	}
	return s.list(ctx, calllog.Filter{UserID: userID, MissedOnly: true}, page)
}

// Room lists the user's calls within one room.
func (s *Service) Room(ctx context.Context, roomID, userID int64, page Page) ([]Entry, error) {
	if userID <= 0 || roomID <= 0 {
		return nil, ErrInvalidRequest
	}
	return s.list(ctx, calllog.Filter{UserID: userID, RoomID: roomID}, page)
}

func (s *Service) list(ctx context.Context, f calllog.Filter, page Page) ([]Entry, error) {
	if page.Limit < 0 || page.Offset < 0 {
		return nil, ErrInvalidRequest
	}
	f.Limit = page.Limit
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Offset = page.Offset

	rows, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.attachNames(ctx, rows)
}

func (s *Service) attachNames(ctx context.Context, rows []calllog.CallLog) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(rows)*2)
	for _, c := range rows {
		ids = append(ids, c.CallerID, c.ReceiverID)
	}
	names, err := directory.Names(ctx, s.dir, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve names: %w", err)
	}
	for _, c := range rows {
		out = append(out, Entry{
			CallLog:      c,
			CallerName:   names[c.CallerID],
			ReceiverName: names[c.ReceiverID],
		})
	}
	return out, nil
}

// Summary aggregates the user's calls created within [From, To).
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.UserID <= 0 {
		return Summary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}

	rows, err := s.store.List(ctx, calllog.Filter{UserID: req.UserID, From: req.Range.From, To: req.Range.To})
	if err != nil {
		return Summary{}, err
	}

	out := Summary{UserID: req.UserID, Range: req.Range}
	for _, c := range rows {
		out.TotalCalls++
		if c.Duration != nil {
			out.TotalDurationSeconds += *c.Duration
		}
		if c.HasRecording {
			out.RecordedCalls++
		}
		if c.CallerID == req.UserID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		switch c.Status {
		case calllog.StatusAnswered:
			out.AnsweredCalls++
		case calllog.StatusMissed:
			out.MissedCalls++
		case calllog.StatusRejected:
			out.RejectedCalls++
		case calllog.StatusCancelled:
			out.CancelledCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}
