package notifications

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// mockRepository is an in-memory queue.
type mockRepository struct {
	mu      sync.Mutex
	items   map[string]*QueueItem
	nextID  int
	sent    []string
	failed  map[string]string
	retried map[string]time.Time

	enqueueErr error
	fetchErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		items:   make(map[string]*QueueItem),
		failed:  make(map[string]string),
		retried: make(map[string]time.Time),
	}
}

func (m *mockRepository) EnqueueNotification(_ context.Context, item *QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.nextID++
	item.ID = "item-" + strconv.Itoa(m.nextID)
	item.Status = QueueStatusPending
	m.items[item.ID] = item
	return nil
}

func (m *mockRepository) FetchPendingNotifications(_ context.Context, limit int) ([]*QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*QueueItem
	for i := 1; i <= m.nextID && len(out) < limit; i++ {
		item, ok := m.items["item-"+strconv.Itoa(i)]
		if !ok || item.Status != QueueStatusPending {
			continue
		}
		item.Status = QueueStatusProcessing
		out = append(out, item)
	}
	return out, nil
}

func (m *mockRepository) MarkAsSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return ErrQueueItemNotFound
	}
	item.Status = QueueStatusSent
	item.Attempts++
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockRepository) MarkAsFailed(_ context.Context, id string, sendErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return ErrQueueItemNotFound
	}
	item.Status = QueueStatusFailed
	item.Attempts++
	item.LastError = sendErr.Error()
	m.failed[id] = sendErr.Error()
	return nil
}

func (m *mockRepository) MarkForRetry(_ context.Context, id string, sendErr error, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return ErrQueueItemNotFound
	}
	item.Status = QueueStatusPending
	item.Attempts++
	item.LastError = sendErr.Error()
	item.NextAttemptAt = next
	m.retried[id] = next
	return nil
}

func (m *mockRepository) GetQueueStats(_ context.Context) (*QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats QueueStats
	for _, item := range m.items {
		switch item.Status {
		case QueueStatusPending:
			stats.Pending++
		case QueueStatusProcessing:
			stats.Processing++
		case QueueStatusSent:
			stats.Sent++
		case QueueStatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

func (m *mockRepository) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, item := range m.items {
		if (item.Status == QueueStatusSent || item.Status == QueueStatusFailed) && item.UpdatedAt.Before(before) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) all() []*QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*QueueItem
	for i := 1; i <= m.nextID; i++ {
		if item, ok := m.items["item-"+strconv.Itoa(i)]; ok {
			out = append(out, item)
		}
	}
	return out
}

// mockSender records notifications and returns a scripted error.
type mockSender struct {
	mu          sync.Mutex
	channelType ChannelType
	sent        []Notification
	err         error
}

func (s *mockSender) Type() ChannelType { return s.channelType }

func (s *mockSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}
