package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/carechat/internal/metrics"
)

const greetingTemplate = "Hello! I'm here to help you plan activities for %s. " +
	"I have detailed information about their preferences and background. " +
	"What would you like to know or plan for them?"

// Greeting returns the assistant's opening message for a subject.
func Greeting(name string) string {
	return fmt.Sprintf(greetingTemplate, name)
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used by the polling scheduler.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics records initialize, sync and send timings in mc.
func WithMetrics(mc *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = mc }
}

// WithOnUpdate registers fn to receive a snapshot whenever the session changes.
// Calls are serialized. fn must not call back into the controller's
// Initialize, Send, Sync or Teardown.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onUpdate = fn }
}

// Controller owns the chat session for one subject.
// All methods are safe for concurrent use.
type Controller struct {
	dir      Directory
	log      MessageLog
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector
	onUpdate func(Snapshot)

	publishMu sync.Mutex

	mu           sync.Mutex
	subjectID    string
	subject      *Subject
	messages     []Message
	initializing bool
	initialized  bool
	sending      bool
	syncing      int
	tornDown     bool
	scheduler    *Scheduler
}

// NewController creates an unbound controller.
func NewController(dir Directory, log MessageLog, opts ...Option) *Controller {
	c := &Controller{
		dir:      dir,
		log:      log,
		clock:    SystemClock(),
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize binds the controller to subjectID, loads the subject and its
// log, seeds a greeting if the log is empty and starts polling.
//
// On failure the session stays uninitialized and nothing is retried; the
// caller may call Initialize again.
func (c *Controller) Initialize(ctx context.Context, subjectID string) (Snapshot, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return c.Snapshot(), fmt.Errorf("%w: empty subject id", ErrValidation)
	}

	c.mu.Lock()
	switch {
	case c.tornDown:
		c.mu.Unlock()
		return c.Snapshot(), ErrTornDown
	case c.initialized:
		c.mu.Unlock()
		return c.Snapshot(), ErrAlreadyInitialized
	case c.initializing:
		c.mu.Unlock()
		return c.Snapshot(), ErrBusy
	}
	c.subjectID = subjectID
	c.initializing = true
	c.mu.Unlock()
	c.publish()

	logger := c.logger.With("subject_id", subjectID)
	logger.Debug("initializing chat session")

	start := time.Now()
	subject, messages, err := c.load(ctx, subjectID)
	c.metrics.Observe(metrics.OpChatInitialize, start, err)

	c.mu.Lock()
	c.initializing = false
	if c.tornDown {
		c.mu.Unlock()
		return c.Snapshot(), ErrTornDown
	}
	if err != nil {
		c.mu.Unlock()
		logger.Error("failed to initialize chat session", "error", err)
		c.publish()
		return c.Snapshot(), err
	}
	c.subject = subject
	c.messages = messages
	c.initialized = true
	c.scheduler = NewScheduler(c.clock, c.interval, c.tick, logger)
	c.scheduler.Start(context.WithoutCancel(ctx))
	c.mu.Unlock()

	logger.Info("chat session ready", "messages", len(messages), "poll_interval", c.interval)
	c.publish()
	return c.Snapshot(), nil
}

// load fetches the subject and its log, seeding the greeting when the log is empty.
func (c *Controller) load(ctx context.Context, subjectID string) (*Subject, []Message, error) {
	subject, err := c.dir.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load subject %s: %w", subjectID, classify(err))
	}
	if subject == nil {
		return nil, nil, fmt.Errorf("load subject %s: %w", subjectID, ErrNotFound)
	}

	messages, err := c.log.ListMessages(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load messages: %w", classify(err))
	}
	if len(messages) > 0 {
		return subject, messages, nil
	}

	// Best effort: two sessions that both observe an empty log will both seed.
	if c.isTornDown() {
		return nil, nil, ErrTornDown
	}
	if err := c.log.AppendMessage(ctx, subjectID, Greeting(subject.Name), RoleAssistant); err != nil {
		return nil, nil, fmt.Errorf("seed greeting: %w", classify(err))
	}
	c.logger.Info("seeded greeting", "subject_id", subjectID)

	messages, err = c.log.ListMessages(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload messages: %w", classify(err))
	}
	return subject, messages, nil
}

// Send appends text as a caregiver message and refreshes the log.
//
// A nil return means the backend accepted the message and the caller should
// clear its input. On error the cached log is untouched and the caller keeps
// its input. Send never waits for the assistant's reply; polling delivers it.
func (c *Controller) Send(ctx context.Context, text string) error {
	body := strings.TrimSpace(text)

	c.mu.Lock()
	switch {
	case c.tornDown:
		c.mu.Unlock()
		return ErrTornDown
	case body == "":
		c.mu.Unlock()
		return fmt.Errorf("%w: message body is empty", ErrValidation)
	case !c.initialized:
		c.mu.Unlock()
		return ErrNotReady
	case c.sending:
		c.mu.Unlock()
		return ErrBusy
	}
	c.sending = true
	subjectID := c.subjectID
	c.mu.Unlock()
	c.publish()

	logger := c.logger.With("subject_id", subjectID)
	start := time.Now()

	if err := c.log.AppendMessage(ctx, subjectID, body, RoleCaregiver); err != nil {
		err = classify(err)
		c.metrics.Observe(metrics.OpChatSend, start, err)
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		logger.Warn("failed to send message", "error", err)
		c.publish()
		return fmt.Errorf("send message: %w", err)
	}

	messages, err := c.log.ListMessages(ctx, subjectID)
	c.metrics.Observe(metrics.OpChatSend, start, nil)

	c.mu.Lock()
	c.sending = false
	if c.tornDown {
		c.mu.Unlock()
		return nil
	}
	if err == nil {
		c.messages = messages
	}
	c.mu.Unlock()

	if err != nil {
		logger.Warn("failed to refresh after send, next poll will catch up", "error", classify(err))
	}
	c.publish()
	return nil
}

// Sync re-reads the log and replaces the cached sequence wholesale.
// Failures leave the cached sequence and the polling cycle untouched.
func (c *Controller) Sync(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.tornDown:
		c.mu.Unlock()
		return ErrTornDown
	case !c.initialized:
		c.mu.Unlock()
		return ErrNotReady
	}
	c.syncing++
	subjectID := c.subjectID
	c.mu.Unlock()

	start := time.Now()
	messages, err := c.log.ListMessages(ctx, subjectID)
	c.metrics.Observe(metrics.OpChatSync, start, err)

	c.mu.Lock()
	c.syncing--
	if c.tornDown {
		c.mu.Unlock()
		return ErrTornDown
	}
	if err == nil {
		c.messages = messages
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("sync messages: %w", classify(err))
	}
	c.publish()
	return nil
}

// tick is the scheduler callback. Errors are logged only; the next tick retries.
func (c *Controller) tick(ctx context.Context) {
	if err := c.Sync(ctx); err != nil && !errors.Is(err, ErrTornDown) {
		c.logger.Warn("poll failed", "subject_id", c.SubjectID(), "error", err)
	}
}

// Teardown stops polling and releases the session. Results of operations
// still in flight are discarded. Safe to call more than once.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	sched := c.scheduler
	subjectID := c.subjectID
	c.mu.Unlock()

	if sched != nil {
		sched.Cancel()
	}
	c.logger.Debug("chat session torn down", "subject_id", subjectID)
}

// Wait blocks until a poll tick that was running at teardown has returned.
func (c *Controller) Wait() {
	c.mu.Lock()
	sched := c.scheduler
	c.mu.Unlock()
	if sched != nil {
		sched.Wait()
	}
}

// SubjectID returns the bound subject, or "" before Initialize.
func (c *Controller) SubjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subjectID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) isTornDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tornDown
}

func (c *Controller) stateLocked() State {
	switch {
	case c.tornDown:
		return StateTornDown
	case c.initializing:
		return StateInitializing
	case c.sending:
		return StateSending
	case c.syncing > 0:
		return StateSyncing
	case c.initialized:
		return StateReady
	default:
		return StateUnbound
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	var subject *Subject
	if c.subject != nil {
		s := *c.subject
		subject = &s
	}
	return Snapshot{
		SubjectID:   c.subjectID,
		Subject:     subject,
		Messages:    slices.Clone(c.messages),
		Pending:     c.initializing || c.sending,
		Initialized: c.initialized,
		State:       c.stateLocked(),
	}
}

// publish hands the current snapshot to the update callback.
func (c *Controller) publish() {
	if c.onUpdate == nil {
		return
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.onUpdate(snap)
}
