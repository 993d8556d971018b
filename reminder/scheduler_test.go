package reminder

import (
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studybot/db"
)

type memStore struct {
	reminders map[int]*db.Reminder
	dead      map[int]bool
	failErr   error
}

func newMemStore() *memStore {
	return &memStore{
		reminders: make(map[int]*db.Reminder),
		dead:      make(map[int]bool),
	}
}

func (s *memStore) add(r db.Reminder) {
	cp := r
	s.reminders[r.ID] = &cp
}

func (s *memStore) DueReminders(now time.Time) ([]db.Reminder, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	var due []db.Reminder
	for _, r := range s.reminders {
		if !s.dead[r.ID] && !r.RemindAt.After(now) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (s *memStore) DeleteReminder(id int) error {
	delete(s.reminders, id)
	return nil
}

func (s *memStore) RecordFailure(id int) (int16, error) {
	s.reminders[id].Attempts++
	return s.reminders[id].Attempts, nil
}

func (s *memStore) BuryReminder(id int) error {
	s.dead[id] = true
	return nil
}

type memDirectory struct {
	users map[string]*db.User
	err   error
}

func (d *memDirectory) UserByUsername(username string) (*db.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.users[username], nil
}

type sent struct {
	chatID int64
	text   string
}

type memSink struct {
	sent []sent
	err  error
}

func (s *memSink) Send(chatID int64, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{chatID, text})
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *memStore, *memDirectory, *memSink, clock.FakeClock) {
	t.Helper()

	store := newMemStore()
	dir := &memDirectory{users: map[string]*db.User{
		"alice": {ID: 1, ChatID: 100, Username: "alice"},
	}}
	sink := &memSink{}

	clk := clock.NewFake()
	clk.Set(time.Date(2030, time.March, 14, 12, 0, 0, 0, time.UTC))

	s := NewScheduler(store, dir, sink, zap.NewNop().Sugar())
	s.clk = clk
	return s, store, dir, sink, clk
}

func TestDueReminderDeliveredAndDeleted(t *testing.T) {
	s, store, _, sink, clk := newTestScheduler(t)

	store.add(db.Reminder{ID: 1, Username: "alice", RemindAt: clk.Now().Add(-time.Second), Text: "check in"})

	s.runCycle()

	require.Len(t, sink.sent, 1)
	assert.Equal(t, int64(100), sink.sent[0].chatID)
	assert.Equal(t, "check in", sink.sent[0].text)
	assert.Empty(t, store.reminders)
}

func TestFutureReminderUntouched(t *testing.T) {
	s, store, _, sink, clk := newTestScheduler(t)

	store.add(db.Reminder{ID: 1, Username: "alice", RemindAt: clk.Now().Add(time.Hour), Text: "later"})

	s.runCycle()

	assert.Empty(t, sink.sent)
	assert.Contains(t, store.reminders, 1)
}

func TestUnresolvableRecipientRetried(t *testing.T) {
	s, store, _, sink, clk := newTestScheduler(t)

	store.add(db.Reminder{ID: 1, Username: "ghost", RemindAt: clk.Now().Add(-time.Second), Text: "hello"})

	s.runCycle()
	s.runCycle()

	assert.Empty(t, sink.sent)
	assert.Contains(t, store.reminders, 1, "reminder must survive cycles until the recipient resolves")
	assert.Equal(t, int16(0), store.reminders[1].Attempts)
}

func TestSendFailureKeepsReminder(t *testing.T) {
	s, store, _, sink, clk := newTestScheduler(t)
	sink.err = errors.New("telegram unreachable")

	store.add(db.Reminder{ID: 1, Username: "alice", RemindAt: clk.Now().Add(-time.Second), Text: "hello"})

	s.runCycle()

	assert.Contains(t, store.reminders, 1)
	assert.Equal(t, int16(1), store.reminders[1].Attempts)
	assert.False(t, store.dead[1])

	// delivery recovers on a later cycle
	sink.err = nil
	s.runCycle()
	assert.Len(t, sink.sent, 1)
	assert.Empty(t, store.reminders)
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	s, store, _, sink, clk := newTestScheduler(t)
	sink.err = errors.New("telegram unreachable")

	store.add(db.Reminder{ID: 1, Username: "alice", RemindAt: clk.Now().Add(-time.Second), Text: "hello"})

	for i := int16(0); i < s.maxAttempts; i++ {
		s.runCycle()
	}

	assert.True(t, store.dead[1])

	// a buried reminder is no longer fetched
	sink.err = nil
	s.runCycle()
	assert.Empty(t, sink.sent)
}

func TestOneFaultDoesNotAbortCycle(t *testing.T) {
	s, store, dir, sink, clk := newTestScheduler(t)
	dir.users["bob"] = &db.User{ID: 2, ChatID: 200, Username: "bob"}

	store.add(db.Reminder{ID: 1, Username: "ghost", RemindAt: clk.Now().Add(-time.Second), Text: "lost"})
	store.add(db.Reminder{ID: 2, Username: "alice", RemindAt: clk.Now().Add(-time.Second), Text: "first"})
	store.add(db.Reminder{ID: 3, Username: "bob", RemindAt: clk.Now().Add(-time.Second), Text: "second"})

	s.runCycle()

	assert.Len(t, sink.sent, 2)
	assert.Contains(t, store.reminders, 1)
}

func TestStoreFailureSkipsCycle(t *testing.T) {
	s, store, _, sink, _ := newTestScheduler(t)
	store.failErr = errors.New("connection refused")

	s.runCycle()
	assert.Empty(t, sink.sent)
}
