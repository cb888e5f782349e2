package history

import (
	"time"

	"chatcall/internal/calllog"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Page bounds a list query. A zero Limit means DefaultLimit.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is a CallLog with both participants' display names attached.
type Entry struct {
	calllog.CallLog

	CallerName   string `json:"callerName"`
	ReceiverName string `json:"receiverName"`
}

// SummaryRequest asks for aggregated call metrics of one user.
type SummaryRequest struct {
	UserID int64     `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type Summary struct {
	UserID int64     `json:"userId"`
	Range  TimeRange `json:"range"`

	TotalCalls     int `json:"totalCalls"`
	AnsweredCalls  int `json:"answeredCalls"`
	MissedCalls    int `json:"missedCalls"`
	RejectedCalls  int `json:"rejectedCalls"`
	CancelledCalls int `json:"cancelledCalls"`

	// Outgoing and Incoming split TotalCalls by the user's side of the call.
	OutgoingCalls int `json:"outgoingCalls"`
	IncomingCalls int `json:"incomingCalls"`

	TotalDurationSeconds   int `json:"totalDurationSeconds"`
	AverageDurationSeconds int `json:"averageDurationSeconds"`

	RecordedCalls int `json:"recordedCalls"`
}
