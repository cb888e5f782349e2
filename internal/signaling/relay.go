package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

var (
	ErrUnknownEvent = errors.New("signaling: unknown event")
	ErrBadPayload   = errors.New("signaling: malformed payload")
	ErrInvalidSDP   = errors.New("signaling: invalid sdp")
)

// Relay forwards an offer, answer or ICE candidate to the target. It only
// forwards between users that share a pending dial or a live call.
func (g *Gateway) Relay(ctx context.Context, fromUserID int64, event string, req RelayRequest) error {
	switch event {
	case EventOffer, EventAnswer, EventICECandidate:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if fromUserID <= 0 || req.TargetUserID <= 0 || req.TargetUserID == fromUserID {
		return nil
	}
	if event != EventICECandidate {
		if err := validateSDP(req.Payload); err != nil {
			return err
		}
	}

	g.mu.Lock()
	_, pending := g.reg.sessions[pairKey(fromUserID, req.TargetUserID)]
	live := g.reg.linked(fromUserID, req.TargetUserID)
	g.mu.Unlock()

	if !pending && !live {
		g.log.Debug("relay without a shared call dropped", "event", event, "from", fromUserID, "to", req.TargetUserID)
		return nil
	}
	if g.notify != nil {
		g.notify.SendToUser(req.TargetUserID, Event{
			Name: event,
			Data: RelayPayload{FromUserID: fromUserID, Payload: req.Payload},
		})
	}
	return nil
}

// validateSDP parses the "sdp" field of an offer or answer when present.
// Payloads without one are forwarded untouched.
func validateSDP(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var desc struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return nil
	}
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	return nil
}

// Handle decodes one inbound envelope and runs the matching operation.
func (g *Gateway) Handle(ctx context.Context, userID int64, env Envelope) error {
	if userID <= 0 {
		return nil
	}
	switch env.Event {
	case EventDial:
		var req DialRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return g.Dial(ctx, userID, req)
	case EventAccept:
		var req AnswerRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return g.Accept(ctx, userID, req)
	case EventReject:
		var req AnswerRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return g.Reject(ctx, userID, req)
	case EventCancel:
		var req CancelRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return g.Cancel(ctx, userID, req)
	case EventEnd:
		return g.End(ctx, userID)
	case EventOffer, EventAnswer, EventICECandidate:
		var req RelayRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return g.Relay(ctx, userID, env.Event, req)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
