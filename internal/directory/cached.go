package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached memoizes display names in an expiring LRU. Membership is always
// read through, since it gates who may be dialed.
type Cached struct {
	next  Directory
	names *expirable.LRU[int64, string]
}

func NewCached(next Directory, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, names: expirable.NewLRU[int64, string](size, nil, ttl)}
}

func (c *Cached) DisplayName(ctx context.Context, userID int64) (string, error) {
	if name, ok := c.names.Get(userID); ok {
		return name, nil
	}
	name, err := c.next.DisplayName(ctx, userID)
	if err != nil {
		return "", err
	}
	c.names.Add(userID, name)
	return name, nil
}

func (c *Cached) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	return c.next.IsMember(ctx, roomID, userID)
}

func (c *Cached) Members(ctx context.Context, roomID int64) ([]int64, error) {
	return c.next.Members(ctx, roomID)
}
