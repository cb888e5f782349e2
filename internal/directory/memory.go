package directory

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Directory for tests and early development.
type Memory struct {
	mu    sync.Mutex
	users map[int64]User
	rooms map[int64]map[int64]struct{}
}

func NewMemory() *Memory {
	return &Memory{users: map[int64]User{}, rooms: map[int64]map[int64]struct{}{}}
}

func (m *Memory) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) AddMember(roomID int64, userIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rooms[roomID]
	if !ok {
		set = map[int64]struct{}{}
		m.rooms[roomID] = set
	}
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
}

func (m *Memory) RemoveMember(roomID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms[roomID], userID)
}

func (m *Memory) DisplayName(ctx context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", nil
	}
	return u.DisplayName(), nil
}

func (m *Memory) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID][userID]
	return ok, nil
}

func (m *Memory) Members(ctx context.Context, roomID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.rooms[roomID]))
	for id := range m.rooms[roomID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
