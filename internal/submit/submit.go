// Package submit finishes a quiz run: the result is computed and shown
// before any network call, then the lead is stored and the webhook notified
// in the background.
package submit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/scoring"
	"github.com/tetrispositiva/diagnostico/internal/wire"
	"github.com/tetrispositiva/diagnostico/internal/wizard"
)

// LeadSink receives a finished run. Implementations: the API client, the
// webhook, and the stores on the server side.
type LeadSink interface {
	SaveLead(ctx context.Context, p wire.LeadPayload) error
}

// Pipeline wires the sinks a submission fans out to. Webhook may be nil.
type Pipeline struct {
	Leads   LeadSink
	Webhook LeadSink
	Timeout time.Duration // per background call; zero leaves it to the transport
	Now     func() time.Time
}

// Submit validates form, scores the run, moves the wizard to result and
// starts the background calls. The returned Tasks is never needed to show
// the result; callers that are about to exit may Wait on it.
func (p *Pipeline) Submit(ctx context.Context, m *wizard.Machine, form wizard.LeadForm) (model.Result, *Tasks, error) {
	if errs := form.Validate(); len(errs) > 0 {
		return model.Result{}, nil, errs
	}

	d := m.Diagnostic()
	answers := m.Answers()
	res := scoring.Evaluate(d, answers)
	if err := m.Complete(res); err != nil {
		return model.Result{}, nil, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	payload := wire.NewLeadPayload(form.Contact(), answers, res, d.ID, now())

	tasks := &Tasks{errs: make(map[string]error)}
	bg := context.WithoutCancel(ctx)
	if p.Webhook != nil {
		tasks.fire(bg, "webhook", p.Webhook, payload, p.Timeout)
	}
	if p.Leads != nil {
		tasks.fire(bg, "lead", p.Leads, payload, p.Timeout)
	}
	return res, tasks, nil
}

// Tasks tracks the background calls of one submission. Each call runs to
// completion on its own; failures are logged and never retried.
type Tasks struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs map[string]error
}

func (t *Tasks) fire(ctx context.Context, name string, sink LeadSink, p wire.LeadPayload, timeout time.Duration) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := sink.SaveLead(ctx, p)
		if err != nil {
			slog.Error("background lead delivery failed", "target", name, "email", p.Email, "error", err)
		} else {
			slog.Info("background lead delivery done", "target", name, "email", p.Email)
		}
		t.mu.Lock()
		t.errs[name] = err
		t.mu.Unlock()
	}()
}

// Wait blocks until every call finished or ctx is done.
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome reports how the named call ("lead" or "webhook") ended. done is
// false while it is still running or if it was never started.
func (t *Tasks) Outcome(name string) (done bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	err, done = t.errs[name]
	return done, err
}
