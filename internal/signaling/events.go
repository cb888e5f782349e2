package signaling

import (
	"encoding/json"

	"chatcall/internal/calllog"
)

// Inbound event names.
const (
	EventDial         = "dial"
	EventAccept       = "accept"
	EventReject       = "reject"
	EventCancel       = "cancel"
	EventEnd          = "end"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
)

// Outbound event names. offer, answer and ice-candidate are reused as is.
const (
	EventIncomingCall  = "incoming-call"
	EventCallAccepted  = "call-accepted"
	EventCallRejected  = "call-rejected"
	EventCallCancelled = "call-cancelled"
	EventCallEnded     = "call-ended"
	EventCallNoAnswer  = "call-no-answer"
	EventMissedCall    = "missed-call"
	EventUserBusy      = "user-busy"
)

// Notification reasons.
const (
	ReasonCancelledByCaller = "cancelled by caller"
	ReasonDisconnect        = "disconnect"
	ReasonNoAnswer          = "no answer"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound notification before encoding.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// CallPayload describes a call session well enough for a client to render it.
type CallPayload struct {
	CallLogID   int64            `json:"callLogId"`
	CallerID    int64            `json:"callerId"`
	CallerName  string           `json:"callerName,omitempty"`
	ReceiverID  int64            `json:"receiverId"`
	RoomID      int64            `json:"roomId"`
	CallType    calllog.CallType `json:"callType"`
	IsGroupCall bool             `json:"isGroupCall"`
	Reason      string           `json:"reason,omitempty"`
	// UserID is the user who caused the event, when it is not obvious.
	UserID int64 `json:"userId,omitempty"`
}

// RelayPayload wraps a forwarded offer, answer or ICE candidate.
type RelayPayload struct {
	FromUserID int64           `json:"fromUserId"`
	Payload    json.RawMessage `json:"payload"`
}

// DialRequest targets one user, or every other room member when
// TargetUserID is zero.
type DialRequest struct {
	TargetUserID int64  `json:"targetUserId,omitempty"`
	RoomID       int64  `json:"roomId"`
	CallType     string `json:"callType,omitempty"`
}

// AnswerRequest is sent by the receiver to accept or reject.
type AnswerRequest struct {
	CallerID int64 `json:"callerId"`
}

// CancelRequest cancels one pending dial, or every pending dial of the caller
// (optionally limited to a room) when TargetUserID is zero.
type CancelRequest struct {
	TargetUserID int64 `json:"targetUserId,omitempty"`
	RoomID       int64 `json:"roomId,omitempty"`
}

type RelayRequest struct {
	TargetUserID int64           `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
}
