// Package wizard drives one visitor through the quiz: welcome, concept,
// questions, lead capture and result, with progress kept in a LocalStore so
// an interrupted run resumes where it stopped.
package wizard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

// Step is a wizard screen.
type Step string

const (
	StepWelcome   Step = "welcome"
	StepConcept   Step = "concept"
	StepQuestions Step = "questions"
	StepLead      Step = "lead"
	StepResult    Step = "result"
	StepAdmin     Step = "admin"
)

var (
	// ErrWrongStep is returned when an action is not valid on the current step.
	ErrWrongStep = errors.New("action not allowed in current step")
	// ErrNoQuestions is returned by Start when the diagnostic has no questions.
	ErrNoQuestions = errors.New("diagnostic has no questions")
	// ErrNoSuchOption is returned by Answer for an option index out of range.
	ErrNoSuchOption = errors.New("option out of range")
)

// State is the persisted progress of a run.
type State struct {
	Step                 Step  `json:"step"`
	CurrentQuestionIndex int   `json:"currentQuestionIndex"`
	Answers              []int `json:"answers"`
}

// Machine is the wizard for a single diagnostic. It is not safe for
// concurrent use; transitions come from one user at a time.
type Machine struct {
	diagnostic model.Diagnostic
	store      LocalStore
	state      State
	result     *model.Result
}

// New builds a machine for d and resumes saved progress from store when the
// saved step is questions or lead and still fits d. Anything else starts at
// welcome; an unusable saved entry is removed.
func New(d model.Diagnostic, store LocalStore) *Machine {
	m := &Machine{
		diagnostic: d,
		store:      store,
		state:      State{Step: StepWelcome, Answers: []int{}},
	}
	if saved, ok := m.load(); ok {
		m.state = saved
	}
	return m
}

func (m *Machine) load() (State, bool) {
	raw, ok, err := m.store.Get(StateKey)
	if err != nil {
		slog.Warn("read wizard state", "error", err)
		return State{}, false
	}
	if !ok {
		return State{}, false
	}
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		slog.Warn("discarding unreadable wizard state", "error", err)
		m.forget()
		return State{}, false
	}
	if s.Step != StepQuestions && s.Step != StepLead {
		return State{}, false
	}
	if !m.fits(s) {
		slog.Warn("discarding wizard state that does not fit the diagnostic",
			"step", s.Step, "index", s.CurrentQuestionIndex, "answers", len(s.Answers))
		m.forget()
		return State{}, false
	}
	if s.Answers == nil {
		s.Answers = []int{}
	}
	return s, true
}

func (m *Machine) fits(s State) bool {
	n := len(m.diagnostic.Questions)
	if len(s.Answers) > n || s.CurrentQuestionIndex < 0 {
		return false
	}
	switch s.Step {
	case StepQuestions:
		return s.CurrentQuestionIndex < n && s.CurrentQuestionIndex <= len(s.Answers)
	case StepLead:
		// Lead capture needs every question answered.
		return n > 0 && len(s.Answers) == n && s.CurrentQuestionIndex == n-1
	}
	return true
}

// Step returns the current step.
func (m *Machine) Step() Step { return m.state.Step }

// Index returns the current question index.
func (m *Machine) Index() int { return m.state.CurrentQuestionIndex }

// Answers returns a copy of the recorded point values.
func (m *Machine) Answers() []int {
	out := make([]int, len(m.state.Answers))
	copy(out, m.state.Answers)
	return out
}

// Diagnostic returns the diagnostic this run answers.
func (m *Machine) Diagnostic() model.Diagnostic { return m.diagnostic }

// Question returns the question on screen; ok is false outside the questions step.
func (m *Machine) Question() (q model.Question, ok bool) {
	if m.state.Step != StepQuestions {
		return model.Question{}, false
	}
	return m.diagnostic.Questions[m.state.CurrentQuestionIndex], true
}

// Progress returns the 1-based position and total question count.
func (m *Machine) Progress() (current, total int) {
	return m.state.CurrentQuestionIndex + 1, len(m.diagnostic.Questions)
}

// Result returns the computed result once the run is complete.
func (m *Machine) Result() (model.Result, bool) {
	if m.result == nil {
		return model.Result{}, false
	}
	return *m.result, true
}

// ShowConcept moves from welcome to the explainer screen.
func (m *Machine) ShowConcept() error {
	if m.state.Step != StepWelcome {
		return fmt.Errorf("%w: concept from %s", ErrWrongStep, m.state.Step)
	}
	m.move(StepConcept)
	return nil
}

// Start enters the questions at the first question.
func (m *Machine) Start() error {
	if m.state.Step != StepWelcome && m.state.Step != StepConcept {
		return fmt.Errorf("%w: start from %s", ErrWrongStep, m.state.Step)
	}
	if len(m.diagnostic.Questions) == 0 {
		return ErrNoQuestions
	}
	m.state.CurrentQuestionIndex = 0
	m.move(StepQuestions)
	return nil
}

// Answer records the points of option on the current question and advances,
// or moves to lead capture after the last question.
func (m *Machine) Answer(option int) error {
	q, ok := m.Question()
	if !ok {
		return fmt.Errorf("%w: answer from %s", ErrWrongStep, m.state.Step)
	}
	if option < 0 || option >= len(q.Options) {
		return fmt.Errorf("%w: %d of %d", ErrNoSuchOption, option, len(q.Options))
	}
	i := m.state.CurrentQuestionIndex
	points := q.Options[option].Points
	if i < len(m.state.Answers) {
		m.state.Answers[i] = points
	} else {
		m.state.Answers = append(m.state.Answers, points)
	}

	if i+1 < len(m.diagnostic.Questions) {
		m.state.CurrentQuestionIndex = i + 1
		m.move(StepQuestions)
		return nil
	}
	m.move(StepLead)
	return nil
}

// Back goes to the previous question, or to welcome from the first one.
func (m *Machine) Back() error {
	if m.state.Step != StepQuestions {
		return fmt.Errorf("%w: back from %s", ErrWrongStep, m.state.Step)
	}
	if m.state.CurrentQuestionIndex > 0 {
		m.state.CurrentQuestionIndex--
		m.move(StepQuestions)
		return nil
	}
	m.move(StepWelcome)
	return nil
}

// Complete shows res and drops the saved progress; a finished run is not
// resumable.
func (m *Machine) Complete(res model.Result) error {
	if m.state.Step != StepLead {
		return fmt.Errorf("%w: complete from %s", ErrWrongStep, m.state.Step)
	}
	m.result = &res
	m.state.Step = StepResult
	m.forget()
	return nil
}

// Reset returns to welcome with no answers and no saved progress.
func (m *Machine) Reset() {
	m.state = State{Step: StepWelcome, Answers: []int{}}
	m.result = nil
	m.forget()
}

// EnterAdmin switches to the admin area. Quiz progress is left as saved.
func (m *Machine) EnterAdmin() {
	m.state.Step = StepAdmin
}

// LeaveAdmin returns from the admin area to welcome without touching saved
// quiz progress or the credential.
func (m *Machine) LeaveAdmin() {
	if m.state.Step == StepAdmin {
		m.state.Step = StepWelcome
	}
}

// AdminToken returns the stored admin credential, if any.
func (m *Machine) AdminToken() (string, bool) {
	tok, ok, err := m.store.Get(TokenKey)
	if err != nil {
		slog.Warn("read admin token", "error", err)
		return "", false
	}
	return tok, ok && tok != ""
}

// SetAdminToken stores the credential returned by a successful login.
func (m *Machine) SetAdminToken(token string) error {
	return m.store.Set(TokenKey, token)
}

// Logout clears the admin credential and returns to welcome. Saved quiz
// progress is left alone.
func (m *Machine) Logout() error {
	if err := m.store.Delete(TokenKey); err != nil {
		return err
	}
	m.state.Step = StepWelcome
	return nil
}

// move sets the step and persists the state.
func (m *Machine) move(step Step) {
	m.state.Step = step
	data, err := json.Marshal(m.state)
	if err != nil {
		slog.Warn("encode wizard state", "error", err)
		return
	}
	if err := m.store.Set(StateKey, string(data)); err != nil {
		slog.Warn("save wizard state", "error", err)
	}
}

func (m *Machine) forget() {
	if err := m.store.Delete(StateKey); err != nil {
		slog.Warn("clear wizard state", "error", err)
	}
}
