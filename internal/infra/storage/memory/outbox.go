package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "staybook/internal/app/outbox"
	infraoutbox "staybook/internal/infra/outbox"
)

type outboxState string

const (
	outboxNew     outboxState = "NEW"
	outboxClaimed outboxState = "CLAIMED"
	outboxSent    outboxState = "SENT"
	outboxFailed  outboxState = "FAILED"
)

type outboxEntry struct {
	record      appoutbox.EventRecord
	state       outboxState
	attempts    int
	nextAttempt time.Time
	lastError   string
	claimedBy   string
}

// OutboxStore keeps event records in memory. It serves both as the Outbox the
// command handlers write to and as the Store the dispatcher worker drains.
type OutboxStore struct {
	mu      sync.Mutex
	entries []*outboxEntry
	now     func() time.Time
}

func NewOutboxStore() *OutboxStore {
	return &OutboxStore{now: time.Now}
}

func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &outboxEntry{record: record, state: outboxNew})
	return nil
}

// Flush is a no-op: records are durable the moment Add returns and the worker
// picks them up on its own schedule.
func (s *OutboxStore) Flush(ctx context.Context) error { return nil }

func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// A booking with an earlier record mid-flight or in failure backoff holds
	// back its later records, so a retry cannot reorder statuses on the key.
	held := make(map[string]struct{})
	for _, entry := range s.entries {
		if entry.state == outboxSent {
			continue
		}
		if _, ok := held[entry.record.Aggregate]; ok {
			continue
		}
		due := entry.state == outboxNew ||
			(entry.state == outboxFailed && !entry.nextAttempt.After(now))
		if !due {
			held[entry.record.Aggregate] = struct{}{}
			continue
		}
		entry.state = outboxClaimed
		entry.claimedBy = workerID
		return &infraoutbox.Pending{
			ID:         entry.record.ID,
			Name:       entry.record.Name,
			Payload:    entry.record.Payload,
			OccurredAt: entry.record.OccurredAt,
			Aggregate:  entry.record.Aggregate,
			Headers:    entry.record.Headers,
			Attempts:   entry.attempts,
		}, nil
	}
	return nil, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.find(id); entry != nil {
		entry.state = outboxSent
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.find(id); entry != nil {
		entry.state = outboxFailed
		entry.attempts++
		entry.nextAttempt = next
		entry.lastError = errMsg
	}
	return nil
}

func (s *OutboxStore) find(id string) *outboxEntry {
	for _, entry := range s.entries {
		if entry.record.ID == id {
			return entry
		}
	}
	return nil
}

var _ appoutbox.Outbox = (*OutboxStore)(nil)
var _ infraoutbox.Store = (*OutboxStore)(nil)
