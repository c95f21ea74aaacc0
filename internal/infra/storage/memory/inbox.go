package memory

import (
	"context"
	"sync"

	"staybook/internal/app/consume"
)

// Inbox deduplicates consumed events by event id for the process lifetime.
type Inbox struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewInbox() *Inbox {
	return &Inbox{seen: make(map[string]struct{})}
}

// Seen marks the event id and reports whether it was already recorded.
func (i *Inbox) Seen(ctx context.Context, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[eventID]; ok {
		return true, nil
	}
	i.seen[eventID] = struct{}{}
	return false, nil
}

var _ consume.Inbox = (*Inbox)(nil)
