package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
	"github.com/tetrispositiva/diagnostico/internal/wizard"
)

// blockingSink holds every SaveLead until release is closed.
type blockingSink struct {
	release chan struct{}
	err     error

	mu       sync.Mutex
	payloads []wire.LeadPayload
}

func newBlockingSink(err error) *blockingSink {
	return &blockingSink{release: make(chan struct{}), err: err}
}

func (s *blockingSink) SaveLead(ctx context.Context, p wire.LeadPayload) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
	return s.err
}

func (s *blockingSink) received() []wire.LeadPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.LeadPayload(nil), s.payloads...)
}

func twoQuestionRawQuiz() model.Diagnostic {
	return model.Diagnostic{
		ID:        "diag-1",
		Slug:      "dois",
		ScoreMode: model.ScoreRaw,
		Questions: []model.Question{
			{Text: "Q1", Options: []model.Option{{Points: 1}, {Points: 2}, {Points: 3}, {Points: 4}}},
			{Text: "Q2", Options: []model.Option{{Points: 1}, {Points: 2}, {Points: 3}, {Points: 4}}},
		},
		Bands: []model.ProfileBand{
			{Profile: "Y", ScoreMin: 2, ScoreMax: 4, Level: 1},
			{Profile: "X", ScoreMin: 5, ScoreMax: 8, Level: 2},
		},
	}
}

func machineAtLead(t *testing.T, store wizard.LocalStore) *wizard.Machine {
	t.Helper()
	m := wizard.New(twoQuestionRawQuiz(), store)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	// options C and D are worth 3 and 4 points
	if err := m.Answer(2); err != nil {
		t.Fatal(err)
	}
	if err := m.Answer(3); err != nil {
		t.Fatal(err)
	}
	return m
}

var validForm = wizard.LeadForm{Name: "Ana Souza", Email: "ana@example.com", Phone: "11999999999"}

func TestSubmitShowsResultBeforeNetwork(t *testing.T) {
	tests := []struct {
		name    string
		sinkErr error
	}{
		{"lead save succeeds", nil},
		{"lead save fails", errors.New("storage unavailable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := wizard.NewMemoryStore()
			m := machineAtLead(t, store)
			leads := newBlockingSink(tt.sinkErr)
			fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
			p := &Pipeline{Leads: leads, Now: func() time.Time { return fixed }}

			res, tasks, err := p.Submit(context.Background(), m, validForm)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			// the sink is still blocked, yet the result is already there
			if res.Profile != "X" || res.RawTotal != 7 || res.Score != 7 {
				t.Fatalf("result = %+v, want X with total 7", res)
			}
			if m.Step() != wizard.StepResult {
				t.Fatalf("step = %s, want result", m.Step())
			}
			if _, ok, _ := store.Get(wizard.StateKey); ok {
				t.Fatal("saved state should be cleared on completion")
			}
			if done, _ := tasks.Outcome("lead"); done {
				t.Fatal("lead save should still be pending")
			}

			close(leads.release)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := tasks.Wait(ctx); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			done, saveErr := tasks.Outcome("lead")
			if !done || !errors.Is(saveErr, tt.sinkErr) {
				t.Errorf("Outcome = %v, %v; want done with %v", done, saveErr, tt.sinkErr)
			}

			got := leads.received()
			if len(got) != 1 {
				t.Fatalf("lead sink got %d payloads", len(got))
			}
			lp := got[0]
			if lp.Nome != "Ana Souza" || lp.PontuacaoTotal != 7 || lp.Perfil != "X" || lp.DiagnosticoID != "diag-1" {
				t.Errorf("payload = %+v", lp)
			}
			if len(lp.Respostas) != 2 || lp.Respostas[0] != 3 || lp.Respostas[1] != 4 {
				t.Errorf("respostas = %v", lp.Respostas)
			}
			if !lp.CreatedAt.Equal(fixed) {
				t.Errorf("created_at = %v", lp.CreatedAt)
			}
			// the displayed result is unaffected by the outcome
			if shown, _ := m.Result(); shown.Profile != "X" {
				t.Errorf("shown result changed to %+v", shown)
			}
		})
	}
}

func TestSubmitSinksAreIndependent(t *testing.T) {
	m := machineAtLead(t, wizard.NewMemoryStore())
	leads := newBlockingSink(nil)
	hook := newBlockingSink(errors.New("webhook 500"))
	p := &Pipeline{Leads: leads, Webhook: hook}

	_, tasks, err := p.Submit(context.Background(), m, validForm)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// release only the webhook; the lead save stays blocked
	close(hook.release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if done, _ := tasks.Outcome("webhook"); done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("webhook did not finish while lead save was blocked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if done, _ := tasks.Outcome("lead"); done {
		t.Fatal("lead save should not depend on the webhook")
	}
	close(leads.release)
	if err := tasks.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if done, err := tasks.Outcome("lead"); !done || err != nil {
		t.Errorf("lead outcome = %v, %v", done, err)
	}
}

func TestSubmitSurvivesCallerCancel(t *testing.T) {
	m := machineAtLead(t, wizard.NewMemoryStore())
	leads := newBlockingSink(nil)
	p := &Pipeline{Leads: leads}

	ctx, cancel := context.WithCancel(context.Background())
	_, tasks, err := p.Submit(ctx, m, validForm)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	close(leads.release)
	if err := tasks.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if done, err := tasks.Outcome("lead"); !done || err != nil {
		t.Errorf("cancelled request context must not abort the save: %v, %v", done, err)
	}
}

func TestSubmitWaitHonoursDeadline(t *testing.T) {
	m := machineAtLead(t, wizard.NewMemoryStore())
	leads := newBlockingSink(nil)
	p := &Pipeline{Leads: leads}
	_, tasks, err := p.Submit(context.Background(), m, validForm)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tasks.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
	close(leads.release)
}

func TestSubmitRejectsInvalidForm(t *testing.T) {
	store := wizard.NewMemoryStore()
	m := machineAtLead(t, store)
	leads := newBlockingSink(nil)
	close(leads.release)
	p := &Pipeline{Leads: leads}

	_, tasks, err := p.Submit(context.Background(), m, wizard.LeadForm{Name: "Al", Email: "x", Phone: "1"})
	var fe wizard.FieldErrors
	if !errors.As(err, &fe) || len(fe) != 3 {
		t.Fatalf("err = %v, want three field errors", err)
	}
	if tasks != nil {
		t.Error("no background work may start on invalid input")
	}
	if m.Step() != wizard.StepLead {
		t.Errorf("step = %s, want lead", m.Step())
	}
	if _, ok, _ := store.Get(wizard.StateKey); !ok {
		t.Error("progress must survive a validation failure")
	}
	if len(leads.received()) != 0 {
		t.Error("lead sink must not be called")
	}
}

func TestSubmitOutsideLeadStep(t *testing.T) {
	m := wizard.New(twoQuestionRawQuiz(), wizard.NewMemoryStore())
	p := &Pipeline{Leads: newBlockingSink(nil)}
	if _, _, err := p.Submit(context.Background(), m, validForm); !errors.Is(err, wizard.ErrWrongStep) {
		t.Errorf("err = %v, want ErrWrongStep", err)
	}
}

func TestWebhook(t *testing.T) {
	received := make(chan wire.LeadPayload, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var p wire.LeadPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- p
		if p.Nome == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, srv.Client())
	if err := hook.SaveLead(context.Background(), wire.LeadPayload{Nome: "Ana", PontuacaoTotal: 54}); err != nil {
		t.Fatalf("SaveLead: %v", err)
	}
	if got := <-received; got.Nome != "Ana" || got.PontuacaoTotal != 54 {
		t.Errorf("webhook received %+v", got)
	}
	if err := hook.SaveLead(context.Background(), wire.LeadPayload{Nome: "fail"}); err == nil {
		t.Error("expected error for 502")
	}

	if NewWebhook("", nil) != nil {
		t.Error("empty url should disable the webhook")
	}
}
