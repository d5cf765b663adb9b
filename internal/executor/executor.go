// Package executor runs remote calls as cancellable, deadline-bounded units of
// work on a bounded worker pool. Each unit resolves exactly once to success,
// timeout, cancelled or failure, and every resolution is published.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Target is what a unit of work runs against. Done closing cancels pending units.
type Target interface {
	Name() string
	Done() <-chan struct{}
}

type broker string

func (b broker) Name() string { return string(b) }

func (broker) Done() <-chan struct{} { return nil }

// Broker returns a Target identified only by broker name, for work that has
// no live handle yet (connect) or runs after the handle is gone (close).
func Broker(name string) Target { return broker(name) }

// Work is the unit run by the executor. It must honour ctx.
type Work func(ctx context.Context) (any, error)

// Result is the resolution of an operation.
type Result struct {
	OperationID string
	Kind        domain.OperationKind
	Broker      string
	Outcome     domain.Outcome
	Value       any
	Err         error
	Elapsed     time.Duration
	Late        bool
}

// Operation is one in-flight unit of work.
type Operation struct {
	ID        string
	Kind      domain.OperationKind
	Target    string
	Submitted time.Time
	Deadline  time.Time

	done       chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once
	once       sync.Once
	result     Result
}

// Done is closed once the operation resolved.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Cancel requests cancellation. It has no effect once the operation resolved.
func (op *Operation) Cancel() {
	op.cancelOnce.Do(func() { close(op.cancelCh) })
}

// Wait blocks until the operation resolved. Resolution never outlives the deadline.
func (op *Operation) Wait() (any, error) {
	<-op.done
	return op.result.Value, op.result.Err
}

// Result returns the resolution, if any.
func (op *Operation) Result() (Result, bool) {
	select {
	case <-op.done:
		return op.result, true
	default:
		return Result{}, false
	}
}

// Executor runs work under the budgets of the timeout policy.
type Executor struct {
	timeouts config.Timeouts
	sem      *semaphore.Weighted
	sink     domain.EventPublisher
}

// New creates an executor with at most workers units running concurrently.
func New(timeouts config.Timeouts, workers int, sink domain.EventPublisher) *Executor {
	if workers <= 0 {
		workers = 1
	}
	return &Executor{
		timeouts: timeouts.WithDefaults(),
		sem:      semaphore.NewWeighted(int64(workers)),
		sink:     sink,
	}
}

// Budget returns the deadline budget applied to kind.
func (e *Executor) Budget(kind domain.OperationKind) time.Duration {
	return e.timeouts.Lookup(kind.TimeoutKind())
}

type completion struct {
	value any
	err   error
	ran   bool
}

// Submit schedules work and returns immediately. The deadline starts now;
// waiting for a worker slot counts against it. Cancelling ctx, calling
// Cancel, or closing the target's Done channel resolves the operation as
// cancelled. The work's own context is detached from ctx and is cancelled
// only after resolution, so a cancellation is never misreported as timeout.
func (e *Executor) Submit(ctx context.Context, kind domain.OperationKind, target Target, work Work) *Operation {
	now := time.Now()
	op := &Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Submitted: now,
		Deadline:  now.Add(e.Budget(kind)),
		done:      make(chan struct{}),
		cancelCh:  make(chan struct{}),
	}
	if target != nil {
		op.Target = target.Name()
	}

	workCtx, cancelWork := context.WithDeadline(context.WithoutCancel(ctx), op.Deadline)
	completed := make(chan completion, 1)
	go func() {
		if err := e.sem.Acquire(workCtx, 1); err != nil {
			completed <- completion{err: err}
			return
		}
		defer e.sem.Release(1)
		v, err := work(workCtx)
		completed <- completion{value: v, err: err, ran: true}
	}()

	go e.watch(ctx, op, target, workCtx, cancelWork, completed)
	return op
}

// Run submits work and waits for its resolution.
func (e *Executor) Run(ctx context.Context, kind domain.OperationKind, target Target, work Work) (any, error) {
	return e.Submit(ctx, kind, target, work).Wait()
}

// Do is the typed form of Run.
func Do[T any](ctx context.Context, e *Executor, kind domain.OperationKind, target Target, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := e.Run(ctx, kind, target, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	out, _ := v.(T)
	return out, err
}

func (e *Executor) watch(ctx context.Context, op *Operation, target Target, workCtx context.Context, cancelWork context.CancelFunc, completed <-chan completion) {
	defer cancelWork()

	var targetDone <-chan struct{}
	if target != nil {
		targetDone = target.Done()
	}
	timer := time.NewTimer(time.Until(op.Deadline))
	defer timer.Stop()

	if ctx.Err() != nil {
		e.resolve(op, domain.OutcomeCancelled, nil, cancelCause(ctx))
	} else {
		select {
		case c := <-completed:
			e.resolveCompletion(op, workCtx, c)
			return
		case <-timer.C:
			e.resolve(op, domain.OutcomeTimeout, nil, domain.ErrTimeout)
		case <-ctx.Done():
			e.resolve(op, domain.OutcomeCancelled, nil, cancelCause(ctx))
		case <-targetDone:
			e.resolve(op, domain.OutcomeCancelled, nil, domain.ErrHandleClosed)
		case <-op.cancelCh:
			e.resolve(op, domain.OutcomeCancelled, nil, nil)
		}
	}

	cancelWork()
	c := <-completed
	if !c.ran {
		return
	}
	e.late(op, c)
}

// cancelCause is the caller's reason for cancelling, if it gave one.
func cancelCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func (e *Executor) resolveCompletion(op *Operation, workCtx context.Context, c completion) {
	switch {
	case c.err == nil:
		e.resolve(op, domain.OutcomeSuccess, c.value, nil)
	case errors.Is(workCtx.Err(), context.DeadlineExceeded):
		closeValue(c.value)
		e.resolve(op, domain.OutcomeTimeout, nil, domain.ErrTimeout)
	default:
		closeValue(c.value)
		e.resolve(op, domain.OutcomeFailure, nil, c.err)
	}
}

func (e *Executor) resolve(op *Operation, outcome domain.Outcome, value any, cause error) {
	op.once.Do(func() {
		elapsed := time.Since(op.Submitted)
		err := cause
		switch outcome {
		case domain.OutcomeTimeout:
			err = &domain.OperationError{Kind: op.Kind, Broker: op.Target, Outcome: outcome, Cause: domain.ErrTimeout}
		case domain.OutcomeCancelled:
			c := domain.ErrCancelled
			if cause != nil {
				c = fmt.Errorf("%w: %w", domain.ErrCancelled, cause)
			}
			err = &domain.OperationError{Kind: op.Kind, Broker: op.Target, Outcome: outcome, Cause: c}
		}
		op.result = Result{
			OperationID: op.ID,
			Kind:        op.Kind,
			Broker:      op.Target,
			Outcome:     outcome,
			Value:       value,
			Err:         err,
			Elapsed:     elapsed,
		}
		close(op.done)

		switch outcome {
		case domain.OutcomeSuccess:
			utils.Logger.Debug("operation resolved", "op", op.Kind, "broker", op.Target, "outcome", outcome, "elapsed", elapsed)
		case domain.OutcomeFailure:
			utils.Logger.Warn("operation resolved", "op", op.Kind, "broker", op.Target, "outcome", outcome, "elapsed", elapsed, "err", err)
		default:
			utils.Logger.Info("operation resolved", "op", op.Kind, "broker", op.Target, "outcome", outcome, "elapsed", elapsed)
		}
		e.publish(op.result)
	})
}

// late reports a completion that arrived after the operation resolved and
// releases whatever it produced.
func (e *Executor) late(op *Operation, c completion) {
	closeValue(c.value)
	outcome := domain.OutcomeSuccess
	if c.err != nil {
		outcome = domain.OutcomeFailure
	}
	utils.Logger.Debug("late completion discarded", "op", op.Kind, "broker", op.Target, "outcome", outcome)
	e.publish(Result{
		OperationID: op.ID,
		Kind:        op.Kind,
		Broker:      op.Target,
		Outcome:     outcome,
		Err:         c.err,
		Elapsed:     time.Since(op.Submitted),
		Late:        true,
	})
}

func (e *Executor) publish(r Result) {
	if e.sink == nil {
		return
	}
	ev := domain.Event{
		Type:        domain.EventOperation,
		OperationID: r.OperationID,
		Kind:        r.Kind,
		Broker:      r.Broker,
		Outcome:     r.Outcome,
		ElapsedMs:   r.Elapsed.Milliseconds(),
		Late:        r.Late,
		Key:         "events.operation." + string(r.Outcome),
		Args: map[string]any{
			"kind":    string(r.Kind),
			"broker":  r.Broker,
			"elapsed": r.Elapsed.Round(time.Millisecond).String(),
		},
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
		ev.Args["error"] = r.Err.Error()
	}
	if r.Late {
		ev.Type = domain.EventLateCompletion
		ev.Key = "events.late_completion"
		ev.Args["outcome"] = string(r.Outcome)
	}
	e.sink.Publish(ev)
}

func closeValue(v any) {
	switch c := v.(type) {
	case io.Closer:
		_ = c.Close()
	case interface{ Close() }:
		c.Close()
	}
}
