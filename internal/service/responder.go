package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/llm"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/raphaelgruber/carechat/internal/store"
	"golang.org/x/sync/errgroup"
)

// Generator produces the assistant's next message.
type Generator interface {
	Reply(ctx context.Context, subject chat.Subject, history []chat.Message) (string, error)
}

// ResponderOptions configures a Responder. Zero values use defaults.
type ResponderOptions struct {
	Workers    int           // default 2
	History    int           // messages passed to the generator, default 20
	QueueSize  int           // default 64
	JobTimeout time.Duration // default 2m
	Logger     *slog.Logger
	Metrics    *metrics.Collector
}

// Responder answers caregiver messages in the background. Jobs are keyed by
// subject; a subject already waiting in the queue is not queued twice.
type Responder struct {
	store      store.Store
	gen        Generator
	workers    int
	history    int
	jobTimeout time.Duration
	logger     *slog.Logger
	metrics    *metrics.Collector

	queue    chan string
	mu       sync.Mutex
	pending  map[string]bool // queued, not yet picked up
	running  map[string]bool // a worker is answering this subject
	followUp map[string]bool // enqueued again while running
}

// NewResponder creates a responder. Call Run to start its workers.
func NewResponder(s store.Store, gen Generator, opts ResponderOptions) *Responder {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.History <= 0 {
		opts.History = 20
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Responder{
		store:      s,
		gen:        gen,
		workers:    opts.Workers,
		history:    opts.History,
		jobTimeout: opts.JobTimeout,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		queue:      make(chan string, opts.QueueSize),
		pending:    make(map[string]bool),
		running:    make(map[string]bool),
		followUp:   make(map[string]bool),
	}
}

// Workers returns the configured worker count.
func (r *Responder) Workers() int {
	return r.workers
}

// Enqueue schedules a reply for subjectID. A subject is never answered by
// two workers at once: enqueuing a subject that is being answered schedules
// one follow-up job that runs after the current one. Enqueue reports false
// when the job is already scheduled, the queue is full, or r is nil.
func (r *Responder) Enqueue(subjectID string) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[subjectID] {
		if r.followUp[subjectID] {
			return false
		}
		r.followUp[subjectID] = true
		return true
	}
	return r.enqueueLocked(subjectID)
}

func (r *Responder) enqueueLocked(subjectID string) bool {
	if r.pending[subjectID] {
		return false
	}

	select {
	case r.queue <- subjectID:
		r.pending[subjectID] = true
		return true
	default:
		r.logger.Warn("responder queue full, dropping job", "subject", subjectID)
		return false
	}
}

// Run starts the workers and blocks until ctx is done.
func (r *Responder) Run(ctx context.Context) error {
	r.logger.Info("responder started", "workers", r.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		g.Go(func() error {
			r.work(ctx, i)
			return nil
		})
	}
	err := g.Wait()

	r.logger.Info("responder stopped")
	return err
}

func (r *Responder) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case subjectID := <-r.queue:
			r.mu.Lock()
			delete(r.pending, subjectID)
			r.running[subjectID] = true
			r.mu.Unlock()

			r.handle(ctx, worker, subjectID)
			r.finish(subjectID)
		}
	}
}

// finish releases subjectID and queues its follow-up job, if any.
func (r *Responder) finish(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, subjectID)
	if r.followUp[subjectID] {
		delete(r.followUp, subjectID)
		r.enqueueLocked(subjectID)
	}
}

func (r *Responder) handle(ctx context.Context, worker int, subjectID string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("responder job panicked", "subject", subjectID, "worker", worker, "panic", p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	start := time.Now()
	err := r.Process(ctx, subjectID)
	r.metrics.Observe(metrics.OpResponderJob, start, err)

	switch {
	case err == nil:
	case errors.Is(err, llm.ErrFatalAPI):
		r.logger.Error("assistant provider rejected request", "subject", subjectID, "error", err)
	case errors.Is(err, context.Canceled):
		r.logger.Debug("responder job canceled", "subject", subjectID)
	default:
		r.logger.Warn("responder job failed", "subject", subjectID, "error", err)
	}
}

// Process generates and appends one assistant reply for subjectID. It does
// nothing when the log is empty or already ends with an assistant message.
func (r *Responder) Process(ctx context.Context, subjectID string) error {
	subject, err := r.store.GetSubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("load subject: %w", err)
	}
	if subject == nil {
		return fmt.Errorf("%w: subject %q", chat.ErrNotFound, subjectID)
	}

	log, err := r.store.ListMessages(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(log) == 0 || log[len(log)-1].Role == chat.RoleAssistant {
		return nil
	}
	if len(log) > r.history {
		log = log[len(log)-r.history:]
	}

	reply, err := r.gen.Reply(ctx, *subject, log)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	if reply == "" {
		return errors.New("generate reply: empty response")
	}

	msg, err := r.store.AppendMessage(ctx, subjectID, reply, chat.RoleAssistant)
	if err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	r.logger.Info("assistant replied", "subject", subjectID, "id", msg.ID)
	return nil
}
