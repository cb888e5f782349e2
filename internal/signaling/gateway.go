package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatcall/internal/calllog"
	"chatcall/internal/directory"
	"chatcall/pkg/logger"
	"chatcall/pkg/utils"
)

const (
	DefaultRingTimeout = 90 * time.Second

	// timerWriteTimeout bounds store writes made from expiry callbacks.
	timerWriteTimeout = 10 * time.Second
)

// Notifier delivers an event to every connection of a user.
type Notifier interface {
	SendToUser(userID int64, ev Event)
}

// RecordingTrigger is told when an answered call ends.
type RecordingTrigger interface {
	CallEnded(ctx context.Context, callLogID int64) error
}

type Options struct {
	RingTimeout time.Duration
	AfterFunc   utils.AfterFunc
	Now         func() time.Time
}

// Gateway is the call state machine. Each transition runs under one mutex:
// registry changes, the CallLog write and the notifications of a transition
// are never interleaved with another transition.
//
// Actor id 0 means the connection is unauthenticated; every operation is then
// a silent no-op.
type Gateway struct {
	mu  sync.Mutex
	reg *registry

	store     calllog.Store
	dir       directory.Directory
	notify    Notifier
	recording RecordingTrigger

	ringTimeout time.Duration
	afterFunc   utils.AfterFunc
	now         func() time.Time
	log         *slog.Logger
}

func NewGateway(store calllog.Store, dir directory.Directory, notify Notifier, rec RecordingTrigger, opts Options, log *slog.Logger) *Gateway {
	g := &Gateway{
		reg:         newRegistry(),
		store:       store,
		dir:         dir,
		notify:      notify,
		recording:   rec,
		ringTimeout: opts.RingTimeout,
		afterFunc:   opts.AfterFunc,
		now:         opts.Now,
		log:         logger.Component(log, "signaling"),
	}
	if g.ringTimeout <= 0 {
		g.ringTimeout = DefaultRingTimeout
	}
	if g.afterFunc == nil {
		g.afterFunc = utils.RealAfterFunc
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

/* ===================== DIAL ===================== */

// Dial rings one target, or every other member of the room when no target is
// given. A busy target gets a user-busy notice to the caller and the rest of
// the group is still dialed.
func (g *Gateway) Dial(ctx context.Context, callerID int64, req DialRequest) error {
	if callerID <= 0 || req.TargetUserID == callerID {
		return nil
	}

	member, err := g.dir.IsMember(ctx, req.RoomID, callerID)
	if err != nil {
		return fmt.Errorf("check caller membership: %w", err)
	}
	if !member {
		g.log.Debug("dial from non-member ignored", "caller_id", callerID, "room_id", req.RoomID)
		return nil
	}

	group := req.TargetUserID == 0
	var targets []int64
	if group {
		members, err := g.dir.Members(ctx, req.RoomID)
		if err != nil {
			return fmt.Errorf("list room members: %w", err)
		}
		for _, id := range members {
			if id != callerID {
				targets = append(targets, id)
			}
		}
	} else {
		ok, err := g.dir.IsMember(ctx, req.RoomID, req.TargetUserID)
		if err != nil {
			return fmt.Errorf("check target membership: %w", err)
		}
		if !ok {
			g.log.Debug("dial to non-member ignored", "caller_id", callerID, "target_id", req.TargetUserID, "room_id", req.RoomID)
			return nil
		}
		targets = []int64{req.TargetUserID}
	}
	if len(targets) == 0 {
		return nil
	}

	callerName, err := g.dir.DisplayName(ctx, callerID)
	if err != nil {
		g.log.Warn("caller name lookup failed", "caller_id", callerID, "err", err)
	}
	base := sessionMeta{
		CallerID:   callerID,
		CallerName: callerName,
		RoomID:     req.RoomID,
		CallType:   calllog.ParseCallType(req.CallType),
		IsGroup:    group,
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for _, target := range targets {
		m := base
		m.ReceiverID = target
		if err := g.dialOne(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) dialOne(ctx context.Context, m sessionMeta) error {
	key := pairKey(m.CallerID, m.ReceiverID)
	if _, ok := g.reg.sessions[key]; ok {
		g.log.Debug("duplicate dial ignored", "key", key)
		return nil
	}
	if g.reg.busy(m.ReceiverID) {
		p := m.payload()
		p.UserID = m.ReceiverID
		g.send(m.CallerID, EventUserBusy, p)
		return nil
	}

	c, err := g.store.Create(ctx, calllog.NewCall{
		RoomID:     m.RoomID,
		CallerID:   m.CallerID,
		ReceiverID: m.ReceiverID,
		CallType:   m.CallType,
	})
	if err != nil {
		return fmt.Errorf("create call log: %w", err)
	}
	m.CallLogID = c.ID

	timer := g.afterFunc(g.ringTimeout, func() { g.expire(key, c.ID) })
	g.reg.addSession(key, m, timer)

	g.log.Info("ringing", "call_id", c.ID, "caller_id", m.CallerID, "receiver_id", m.ReceiverID, "room_id", m.RoomID)
	g.send(m.ReceiverID, EventIncomingCall, m.payload())
	return nil
}

// expire runs once per dial after the ring timeout. The timer may fire after
// the session was resolved, so state is checked again here.
func (g *Gateway) expire(key string, callLogID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), timerWriteTimeout)
	defer cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.reg.session(key)
	if !ok || m.CallLogID != callLogID || !g.reg.pending(key) {
		return
	}
	if err := g.store.MarkEnded(ctx, callLogID, calllog.StatusMissed, g.now()); err != nil {
		g.log.Warn("mark missed failed", "call_id", callLogID, "err", err)
	}
	g.reg.removeSession(key)

	p := m.payload()
	p.Reason = ReasonNoAnswer
	g.send(m.CallerID, EventCallNoAnswer, p)
	g.send(m.ReceiverID, EventMissedCall, p)
}

/* ===================== ANSWER ===================== */

func (g *Gateway) Accept(ctx context.Context, receiverID int64, req AnswerRequest) error {
	if receiverID <= 0 || req.CallerID <= 0 {
		return nil
	}
	key := pairKey(receiverID, req.CallerID)

	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.reg.session(key)
	if !ok || m.ReceiverID != receiverID || m.CallerID != req.CallerID {
		return nil
	}
	if g.reg.linked(receiverID, req.CallerID) {
		return nil
	}
	// No joining a second, unrelated call.
	for peer := range g.reg.active[receiverID] {
		if peer != req.CallerID {
			g.log.Debug("accept while in another call ignored", "call_id", m.CallLogID, "receiver_id", receiverID)
			return nil
		}
	}

	if err := g.store.MarkAnswered(ctx, m.CallLogID, g.now()); err != nil {
		return fmt.Errorf("mark answered: %w", err)
	}
	if g.reg.ringing[receiverID] == key {
		delete(g.reg.ringing, receiverID)
	}
	g.reg.stopTimeout(key)
	g.reg.link(receiverID, req.CallerID)

	g.log.Info("call answered", "call_id", m.CallLogID)
	p := m.payload()
	p.UserID = receiverID
	g.send(req.CallerID, EventCallAccepted, p)
	return nil
}

func (g *Gateway) Reject(ctx context.Context, receiverID int64, req AnswerRequest) error {
	if receiverID <= 0 || req.CallerID <= 0 {
		return nil
	}
	key := pairKey(receiverID, req.CallerID)

	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.reg.session(key)
	if !ok || m.ReceiverID != receiverID || m.CallerID != req.CallerID {
		return nil
	}
	if g.reg.linked(receiverID, req.CallerID) {
		return nil
	}

	if err := g.store.MarkEnded(ctx, m.CallLogID, calllog.StatusRejected, g.now()); err != nil {
		return fmt.Errorf("mark rejected: %w", err)
	}
	g.reg.removeSession(key)

	p := m.payload()
	p.UserID = receiverID
	g.send(req.CallerID, EventCallRejected, p)
	return nil
}

/* ===================== CANCEL ===================== */

// Cancel withdraws pending dials of the caller. Without a target it sweeps
// every still-ringing dial, unless the caller is already in a call.
func (g *Gateway) Cancel(ctx context.Context, callerID int64, req CancelRequest) error {
	if callerID <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.TargetUserID > 0 {
		key := pairKey(callerID, req.TargetUserID)
		m, ok := g.reg.session(key)
		if !ok || m.CallerID != callerID || g.reg.linked(callerID, req.TargetUserID) {
			return nil
		}
		return g.cancelSession(ctx, key, m, m.ReceiverID, ReasonCancelledByCaller)
	}

	if len(g.reg.active[callerID]) > 0 {
		return nil
	}
	keys := g.reg.sessionsOf(func(m sessionMeta) bool {
		return m.CallerID == callerID && (req.RoomID == 0 || m.RoomID == req.RoomID)
	})
	var errs []error
	for _, key := range keys {
		if !g.reg.pending(key) {
			continue
		}
		m, _ := g.reg.session(key)
		if err := g.cancelSession(ctx, key, m, m.ReceiverID, ReasonCancelledByCaller); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cancelSession always clears the session, even when the store write fails,
// so a user is never left stuck as ringing.
func (g *Gateway) cancelSession(ctx context.Context, key string, m sessionMeta, notifyUser int64, reason string) error {
	err := g.store.MarkEnded(ctx, m.CallLogID, calllog.StatusCancelled, g.now())
	g.reg.removeSession(key)

	p := m.payload()
	p.Reason = reason
	g.send(notifyUser, EventCallCancelled, p)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	return nil
}

/* ===================== END ===================== */

// End hangs up every active peer of the user.
func (g *Gateway) End(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.endAll(ctx, userID, "")
	delete(g.reg.ringing, userID)
	return err
}

// Disconnect is called when the user's last connection closes. Active calls
// are ended and every unresolved dial to or from the user is cancelled.
func (g *Gateway) Disconnect(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	errs := []error{g.endAll(ctx, userID, ReasonDisconnect)}

	keys := g.reg.sessionsOf(func(m sessionMeta) bool {
		return m.CallerID == userID || m.ReceiverID == userID
	})
	for _, key := range keys {
		m, _ := g.reg.session(key)
		if g.reg.linked(m.CallerID, m.ReceiverID) {
			continue
		}
		other := m.CallerID
		if other == userID {
			other = m.ReceiverID
		}
		errs = append(errs, g.cancelSession(ctx, key, m, other, ReasonDisconnect))
	}
	delete(g.reg.ringing, userID)
	return errors.Join(errs...)
}

func (g *Gateway) endAll(ctx context.Context, userID int64, reason string) error {
	var errs []error
	now := g.now()
	for _, peer := range g.reg.peers(userID) {
		key := pairKey(userID, peer)
		p := CallPayload{CallerID: userID, ReceiverID: peer}

		if m, ok := g.reg.session(key); ok {
			if err := g.store.Finish(ctx, m.CallLogID, now); err != nil {
				errs = append(errs, fmt.Errorf("finish call %d: %w", m.CallLogID, err))
			}
			if g.recording != nil {
				if err := g.recording.CallEnded(ctx, m.CallLogID); err != nil {
					g.log.Warn("recording trigger failed", "call_id", m.CallLogID, "err", err)
				}
			}
			g.reg.removeSession(key)
			p = m.payload()
			g.log.Info("call ended", "call_id", m.CallLogID, "by", userID, "reason", reason)
		}
		g.reg.unlink(userID, peer)

		p.Reason = reason
		p.UserID = userID
		g.send(peer, EventCallEnded, p)
	}
	return errors.Join(errs...)
}

func (g *Gateway) send(userID int64, name string, p CallPayload) {
	if g.notify == nil || userID <= 0 {
		return
	}
	g.notify.SendToUser(userID, Event{Name: name, Data: p})
}
