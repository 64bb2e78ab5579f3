package chat_test

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
)

// fakeBackend is an in-process Directory and MessageLog with call counters
// and hooks for simulating failures and interleavings.
type fakeBackend struct {
	mu       sync.Mutex
	subjects map[string]chat.Subject
	logs     map[string][]chat.Message
	clock    time.Time
	nextID   int

	getSubjectErr error
	listErr       error
	appendErr     error

	subjectCalls int
	listCalls    int
	appendCalls  int

	// Hooks run outside the lock, before the call does its work.
	onGetSubject func()
	onList       func(call int)
	onAppend     func(call int)

	// afterList runs outside the lock once ListMessages has read the log.
	afterList func(call int)
}

func newFakeBackend(subjects ...chat.Subject) *fakeBackend {
	b := &fakeBackend{
		subjects: make(map[string]chat.Subject),
		logs:     make(map[string][]chat.Message),
		clock:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, s := range subjects {
		b.subjects[s.ID] = s
	}
	return b
}

func (b *fakeBackend) GetSubject(ctx context.Context, id string) (*chat.Subject, error) {
	b.mu.Lock()
	b.subjectCalls++
	hook := b.onGetSubject
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getSubjectErr != nil {
		return nil, b.getSubjectErr
	}
	s, ok := b.subjects[id]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", id, chat.ErrNotFound)
	}
	return &s, nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, subjectID string) ([]chat.Message, error) {
	b.mu.Lock()
	b.listCalls++
	call := b.listCalls
	hook := b.onList
	b.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	b.mu.Lock()
	if b.listErr != nil {
		err := b.listErr
		b.mu.Unlock()
		return nil, err
	}
	msgs := slices.Clone(b.logs[subjectID])
	after := b.afterList
	b.mu.Unlock()

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if after != nil {
		after(call)
	}
	return msgs, nil
}

func (b *fakeBackend) AppendMessage(ctx context.Context, subjectID, body string, role chat.Role) error {
	b.mu.Lock()
	b.appendCalls++
	call := b.appendCalls
	hook := b.onAppend
	b.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appendErr != nil {
		return b.appendErr
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty body: %w", chat.ErrValidation)
	}
	b.appendLocked(subjectID, body, role)
	return nil
}

// produce simulates the assistant responder appending to the log.
func (b *fakeBackend) produce(subjectID, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(subjectID, body, chat.RoleAssistant)
}

func (b *fakeBackend) appendLocked(subjectID, body string, role chat.Role) {
	b.nextID++
	b.clock = b.clock.Add(time.Second)
	b.logs[subjectID] = append(b.logs[subjectID], chat.Message{
		ID:        fmt.Sprintf("msg-%d", b.nextID),
		SubjectID: subjectID,
		Role:      role,
		Body:      body,
		CreatedAt: b.clock,
	})
}

func (b *fakeBackend) counts() (subjects, lists, appends int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subjectCalls, b.listCalls, b.appendCalls
}

func (b *fakeBackend) setListErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

func (b *fakeBackend) setAppendErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendErr = err
}

// fakeClock is a virtual clock. Advance fires due timers synchronously, in
// deadline order, on the calling goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	when  time.Time
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) chat.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves virtual time forward by d, firing every timer that comes due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.prune()
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()

		next.f()
	}
}

// Armed returns the number of timers waiting to fire.
func (c *fakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (c *fakeClock) prune() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	c.timers = live
}

// snapshotRecorder collects every snapshot published by a controller.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []chat.Snapshot
}

func (r *snapshotRecorder) record(s chat.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) sawPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snaps {
		if s.Pending {
			return true
		}
	}
	return false
}

func (r *snapshotRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = nil
}
