package calllog

import "time"

// CallLog is one call attempt between a caller and a specific receiver.
//
// A group dial produces one CallLog per receiver. Rows are never deleted here.
// StartedAt is set only on answer; EndedAt and Duration at termination.
type CallLog struct {
	ID         int64 `json:"id"`
	RoomID     int64 `json:"roomId"`
	CallerID   int64 `json:"callerId"`
	ReceiverID int64 `json:"receiverId"`

	Status   Status   `json:"status"`
	CallType CallType `json:"callType"`

	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	// Duration is whole seconds, computed at termination.
	Duration *int `json:"duration,omitempty"`

	RecordingPath       string `json:"recordingPath,omitempty"`
	RecordingProcessing bool   `json:"recordingProcessing"`
	RecordingChunks     int    `json:"recordingChunks"`
	RecordingSize       *int64 `json:"recordingSize,omitempty"`
	RecordingMimeType   string `json:"recordingMimeType,omitempty"`
	HasRecording        bool   `json:"hasRecording"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Status string

const (
	StatusMissed    Status = "missed"
	StatusAnswered  Status = "answered"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusMissed, StatusAnswered, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is allowed as the status written by MarkEnded.
func (s Status) Terminal() bool {
	return s == StatusMissed || s == StatusRejected || s == StatusCancelled
}

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// ParseCallType maps client input to a CallType, defaulting to audio.
func ParseCallType(v string) CallType {
	if CallType(v) == CallTypeVideo {
		return CallTypeVideo
	}
	return CallTypeAudio
}

// NewCall is the input for Store.Create.
type NewCall struct {
	RoomID     int64
	CallerID   int64
	ReceiverID int64
	CallType   CallType
}

// Recording is the outcome of a successful merge.
type Recording struct {
	Path     string
	Size     int64
	MimeType string
}

// Filter narrows List. Zero values mean "no constraint".
type Filter struct {
	// UserID matches rows where the user is caller or receiver.
	UserID int64
	RoomID int64
	// MissedOnly keeps missed calls received by UserID.
	MissedOnly bool

	From time.Time
	To   time.Time

	Limit  int
	Offset int
}

// IsParticipant reports whether userID is the call's caller or receiver.
func (c CallLog) IsParticipant(userID int64) bool {
	return userID > 0 && (c.CallerID == userID || c.ReceiverID == userID)
}

// durationSeconds is whole seconds from start to end, 0 when never started
// or when the clock went backwards.
func durationSeconds(startedAt *time.Time, endedAt time.Time) int {
	if startedAt == nil || endedAt.Before(*startedAt) {
		return 0
	}
	return int(endedAt.Sub(*startedAt) / time.Second)
}
