package signaling

import (
	"fmt"
	"sort"

	"chatcall/internal/calllog"
	"chatcall/pkg/utils"
)

// sessionMeta is what a ringing or answered pair remembers about its dial.
type sessionMeta struct {
	CallLogID  int64
	CallerID   int64
	CallerName string
	ReceiverID int64
	RoomID     int64
	CallType   calllog.CallType
	IsGroup    bool
}

func (m sessionMeta) payload() CallPayload {
	return CallPayload{
		CallLogID:   m.CallLogID,
		CallerID:    m.CallerID,
		CallerName:  m.CallerName,
		ReceiverID:  m.ReceiverID,
		RoomID:      m.RoomID,
		CallType:    m.CallType,
		IsGroupCall: m.IsGroup,
	}
}

// registry is the in-memory session state. It is not safe for concurrent use;
// Gateway serializes every access.
type registry struct {
	// active is the bidirectional active-peer map.
	active map[int64]map[int64]struct{}
	// ringing maps a ringing user to the pair key that rings them.
	ringing  map[int64]string
	sessions map[string]int64
	meta     map[string]sessionMeta
	timeouts map[string]utils.Timer
}

func newRegistry() *registry {
	return &registry{
		active:   map[int64]map[int64]struct{}{},
		ringing:  map[int64]string{},
		sessions: map[string]int64{},
		meta:     map[string]sessionMeta{},
		timeouts: map[string]utils.Timer{},
	}
}

// pairKey is the same for (a, b) and (b, a).
func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

func (r *registry) session(key string) (sessionMeta, bool) {
	m, ok := r.meta[key]
	return m, ok
}

func (r *registry) addSession(key string, m sessionMeta, timer utils.Timer) {
	r.sessions[key] = m.CallLogID
	r.meta[key] = m
	r.ringing[m.ReceiverID] = key
	if timer != nil {
		r.timeouts[key] = timer
	}
}

func (r *registry) stopTimeout(key string) {
	if t, ok := r.timeouts[key]; ok {
		t.Stop()
		delete(r.timeouts, key)
	}
}

// removeSession drops a pair from every map at once.
func (r *registry) removeSession(key string) {
	m, ok := r.meta[key]
	r.stopTimeout(key)
	delete(r.sessions, key)
	delete(r.meta, key)
	if ok && r.ringing[m.ReceiverID] == key {
		delete(r.ringing, m.ReceiverID)
	}
}

// pending reports whether the session is still unanswered. The receiver's
// ringing entry is not consulted: End and Disconnect clear it for the acting
// user while a ring to them from another pair may still be outstanding.
func (r *registry) pending(key string) bool {
	m, ok := r.meta[key]
	return ok && !r.linked(m.CallerID, m.ReceiverID)
}

func (r *registry) busy(userID int64) bool {
	if len(r.active[userID]) > 0 {
		return true
	}
	_, ringing := r.ringing[userID]
	return ringing
}

func (r *registry) link(a, b int64) {
	for _, p := range [][2]int64{{a, b}, {b, a}} {
		set, ok := r.active[p[0]]
		if !ok {
			set = map[int64]struct{}{}
			r.active[p[0]] = set
		}
		set[p[1]] = struct{}{}
	}
}

func (r *registry) unlink(a, b int64) {
	for _, p := range [][2]int64{{a, b}, {b, a}} {
		if set, ok := r.active[p[0]]; ok {
			delete(set, p[1])
			if len(set) == 0 {
				delete(r.active, p[0])
			}
		}
	}
}

func (r *registry) linked(a, b int64) bool {
	_, ok := r.active[a][b]
	return ok
}

// peers returns the active peers of userID in ascending order.
func (r *registry) peers(userID int64) []int64 {
	out := make([]int64, 0, len(r.active[userID]))
	for id := range r.active[userID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sessionsOf returns the keys of sessions matching fn, sorted for stable
// notification order.
func (r *registry) sessionsOf(fn func(m sessionMeta) bool) []string {
	var out []string
	for key, m := range r.meta {
		if fn(m) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
