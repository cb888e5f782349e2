package directory

import (
	"context"
	"strings"
)

// Directory answers identity and room-membership questions owned by the chat app.
type Directory interface {
	// DisplayName returns "" for unknown users.
	DisplayName(ctx context.Context, userID int64) (string, error)
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	// Members lists active participants of a room in ascending id order.
	Members(ctx context.Context, roomID int64) ([]int64, error)
}

// User is the subset of the users table needed for display names.
type User struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// DisplayName prefers "first last", then username, then email.
func (u User) DisplayName() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{u.FirstName, u.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if full := strings.Join(parts, " "); full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Names resolves display names for a set of ids; unknown ids map to "".
func Names(ctx context.Context, d Directory, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok || id <= 0 {
			continue
		}
		name, err := d.DisplayName(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, nil
}
