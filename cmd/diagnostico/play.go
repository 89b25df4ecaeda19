package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tetrispositiva/diagnostico/internal/apiclient"
	appI18n "github.com/tetrispositiva/diagnostico/internal/i18n"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
	"github.com/tetrispositiva/diagnostico/internal/submit"
	"github.com/tetrispositiva/diagnostico/internal/wizard"
)

// loadingDelay is the pause after each answer before the next screen.
var loadingDelay = 500 * time.Millisecond

const maxInvalidInputs = 5

var (
	errQuit              = errors.New("quit")
	errTooManyAttempts   = errors.New("too many invalid inputs")
	errSetupRequiredPlay = errors.New("no diagnostic available")
)

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the diagnostic in the terminal",
		RunE:  runPlay,
	}
	addStorageFlags(cmd)
	addLoggingFlags(cmd)
	f := cmd.Flags()
	f.String("server", "", "Base URL of a running diagnostico server; the local database is used when empty")
	f.String("slug", quizbank.DefaultSlug, "Diagnostic to take")
	f.String("state-dir", defaultStateDir(), "Directory holding saved progress")
	f.String("webhook-url", "", "Also POST the lead to this URL")
	f.Duration("timeout", 15*time.Second, "Timeout for each background submission call")
	f.StringP("lang", "l", appI18n.DefaultLang, "Language (pt-BR, en)")
	return cmd
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".diagnostico"
	}
	return filepath.Join(dir, "diagnostico")
}

// leadSource is where play reads diagnostics from and sends leads to.
type leadSource interface {
	quizbank.Source
	submit.LeadSink
}

func runPlay(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))

	src, api, closeSrc, err := openLeadSource(ctx, v)
	if err != nil {
		return err
	}
	defer closeSrc()

	local, err := wizard.NewFileStore(v.GetString("state-dir"))
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}

	pipeline := &submit.Pipeline{Leads: src, Timeout: v.GetDuration("timeout")}
	if hook := submit.NewWebhook(v.GetString("webhook-url"), nil); hook != nil {
		pipeline.Webhook = hook
	}

	p := &player{
		in:       bufio.NewScanner(cmd.InOrStdin()),
		out:      cmd.OutOrStdout(),
		src:      src,
		api:      api,
		local:    local,
		pipeline: pipeline,
	}
	tasks, err := p.run(ctx, v.GetString("slug"))

	if len(tasks) > 0 {
		drainCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("timeout")+time.Second)
		defer cancel()
		for _, t := range tasks {
			if err := t.Wait(drainCtx); err != nil {
				slog.Warn("background submission still running at exit", "error", err)
				break
			}
		}
	}
	if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// openLeadSource returns the API client as well when --server is set; the
// admin area is only reachable through it.
func openLeadSource(ctx context.Context, v *viper.Viper) (leadSource, *apiclient.Client, func(), error) {
	if server := v.GetString("server"); server != "" {
		client := apiclient.New(server, &http.Client{Timeout: v.GetDuration("timeout")})
		return client, client, func() {}, nil
	}
	repo, err := openRepository(ctx, v)
	if err != nil {
		return nil, nil, nil, err
	}
	return repo, nil, func() { _ = repo.Close() }, nil
}

// player runs the wizard over a line-oriented terminal.
type player struct {
	in       *bufio.Scanner
	out      io.Writer
	src      quizbank.Source
	api      *apiclient.Client
	local    wizard.LocalStore
	pipeline *submit.Pipeline
}

// run plays until the visitor quits or input ends. It returns the Tasks of
// every submission made, so the caller can let them finish.
func (p *player) run(ctx context.Context, slug string) ([]*submit.Tasks, error) {
	d, err := quizbank.Resolve(ctx, p.src, slug)
	if err != nil {
		if errors.Is(err, model.ErrSetupRequired) {
			p.println(appI18n.T(ctx, "SetupRequiredTitle"))
			p.println(appI18n.T(ctx, "SetupRequiredText"))
			return nil, errSetupRequiredPlay
		}
		return nil, err
	}

	m := wizard.New(d, p.local)
	if s := m.Step(); s == wizard.StepQuestions || s == wizard.StepLead {
		p.println(appI18n.T(ctx, "PlayResumed"))
	}

	var tasks []*submit.Tasks
	invalid := 0
	for {
		var err error
		switch m.Step() {
		case wizard.StepWelcome:
			err = p.welcome(ctx, m)
		case wizard.StepConcept:
			err = p.concept(ctx, m)
		case wizard.StepQuestions:
			err = p.question(ctx, m)
		case wizard.StepLead:
			var t *submit.Tasks
			t, err = p.lead(ctx, m)
			if t != nil {
				tasks = append(tasks, t)
			}
		case wizard.StepResult:
			err = p.result(ctx, m)
		case wizard.StepAdmin:
			err = p.admin(ctx, m)
		default:
			m.Reset()
		}

		switch {
		case errors.Is(err, errInvalidInput):
			invalid++
			if invalid >= maxInvalidInputs {
				p.println(appI18n.T(ctx, "PlayTooManyAttempts"))
				return tasks, errTooManyAttempts
			}
		case err != nil:
			return tasks, err
		default:
			invalid = 0
		}
	}
}

var errInvalidInput = errors.New("invalid input")

func (p *player) println(s string) {
	fmt.Fprintln(p.out, s)
}

// ask prints prompt and reads one trimmed line. io.EOF means input ended.
func (p *player) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		fmt.Fprintln(p.out)
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *player) welcome(ctx context.Context, m *wizard.Machine) error {
	d := m.Diagnostic()
	p.println("")
	p.println(d.Title)
	if d.Description != "" {
		p.println(d.Description)
	}
	p.println(appI18n.T(ctx, "PlayWelcome"))
	if p.api != nil {
		p.println(appI18n.T(ctx, "PlayAdminHint"))
	}
	line, err := p.ask(appI18n.T(ctx, "PlayStartPrompt"))
	if err != nil {
		return err
	}
	switch strings.ToLower(line) {
	case "":
		return m.Start()
	case "c":
		return m.ShowConcept()
	case "a":
		m.EnterAdmin()
		return nil
	case "q":
		return errQuit
	}
	p.println(appI18n.T(ctx, "PlayInvalidOption"))
	return errInvalidInput
}

func (p *player) concept(ctx context.Context, m *wizard.Machine) error {
	p.println("")
	p.println(appI18n.T(ctx, "PlayConcept"))
	if _, err := p.ask(appI18n.T(ctx, "PlayConceptPrompt")); err != nil {
		return err
	}
	return m.Start()
}

func optionLetter(i int) string {
	return string(rune('A' + i))
}

// parseOption maps "b" or "B" to 1; ok is false for anything outside n options.
func parseOption(s string, n int) (int, bool) {
	if len(s) != 1 {
		return 0, false
	}
	i := int(strings.ToUpper(s)[0]) - 'A'
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func (p *player) question(ctx context.Context, m *wizard.Machine) error {
	q, _ := m.Question()
	cur, total := m.Progress()
	p.println("")
	p.println(appI18n.Td(ctx, "PlayProgress", map[string]any{"Current": cur, "Total": total}))
	p.println(q.Text)
	for i, o := range q.Options {
		fmt.Fprintf(p.out, "  %s) %s\n", optionLetter(i), o.Text)
	}
	line, err := p.ask(appI18n.Td(ctx, "PlayAnswerPrompt", map[string]any{"Max": optionLetter(len(q.Options) - 1)}))
	if err != nil {
		return err
	}
	if line == "<" {
		return m.Back()
	}
	opt, ok := parseOption(line, len(q.Options))
	if !ok {
		p.println(appI18n.T(ctx, "PlayInvalidOption"))
		return errInvalidInput
	}
	if err := m.Answer(opt); err != nil {
		return err
	}
	p.println(appI18n.T(ctx, "PlayAnalyzing"))
	select {
	case <-time.After(loadingDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *player) lead(ctx context.Context, m *wizard.Machine) (*submit.Tasks, error) {
	p.println("")
	p.println(appI18n.T(ctx, "PlayLeadIntro"))
	var form wizard.LeadForm
	var err error
	if form.Name, err = p.ask(appI18n.T(ctx, "PlayName")); err != nil {
		return nil, err
	}
	if form.Email, err = p.ask(appI18n.T(ctx, "PlayEmail")); err != nil {
		return nil, err
	}
	if form.Phone, err = p.ask(appI18n.T(ctx, "PlayPhone")); err != nil {
		return nil, err
	}
	if fieldErrs := form.Validate(); fieldErrs != nil {
		for _, field := range []string{"name", "email", "phone"} {
			if msgID, ok := fieldErrs[field]; ok {
				p.println("  " + appI18n.T(ctx, msgID))
			}
		}
		return nil, errInvalidInput
	}

	p.println(appI18n.T(ctx, "PlayLoading"))
	_, tasks, err := p.pipeline.Submit(ctx, m, form)
	return tasks, err
}

func (p *player) result(ctx context.Context, m *wizard.Machine) error {
	res, _ := m.Result()
	p.println("")
	p.println(appI18n.Td(ctx, "PlayResultProfile", map[string]any{"Profile": res.Profile, "Level": res.Level}))
	p.println(appI18n.Td(ctx, "PlayResultScore", map[string]any{"Score": res.Score, "RawTotal": res.RawTotal}))
	if res.Description != "" {
		p.println(res.Description)
	}
	p.list(appI18n.T(ctx, "PlaySignals"), res.Signals)
	if res.MainRisk != "" {
		p.println(appI18n.T(ctx, "PlayMainRisk") + " " + res.MainRisk)
	}
	p.list(appI18n.T(ctx, "PlayEvolutionPlan"), res.EvolutionPlan)
	if res.RecommendedSolution != "" {
		p.println(appI18n.T(ctx, "PlayRecommended") + " " + res.RecommendedSolution)
	}

	line, err := p.ask(appI18n.T(ctx, "PlayRestartPrompt"))
	if err != nil {
		return err
	}
	switch strings.ToLower(line) {
	case "s", "y", "sim", "yes":
		m.Reset()
		return nil
	}
	return errQuit
}

func (p *player) list(title string, items []string) {
	if len(items) == 0 {
		return
	}
	p.println(title)
	for _, it := range items {
		p.println("  - " + it)
	}
}

// admin logs in when no credential is stored, lists the leads and offers a
// logout. A rejected stored token is dropped so the next visit asks again.
func (p *player) admin(ctx context.Context, m *wizard.Machine) error {
	if p.api == nil {
		p.println(appI18n.T(ctx, "AdminNeedsServer"))
		m.LeaveAdmin()
		return nil
	}

	token, ok := m.AdminToken()
	if !ok {
		user, err := p.ask(appI18n.T(ctx, "Username") + ": ")
		if err != nil {
			return err
		}
		pass, err := p.ask(appI18n.T(ctx, "Password") + ": ")
		if err != nil {
			return err
		}
		token, err = p.api.Login(ctx, user, pass)
		if err != nil {
			p.println(appI18n.Td(ctx, "AdminLoginFailed", map[string]any{"Error": err.Error()}))
			m.LeaveAdmin()
			return errInvalidInput
		}
		if err := m.SetAdminToken(token); err != nil {
			return fmt.Errorf("store admin token: %w", err)
		}
	}

	client := p.api.WithToken(token)
	leads, err := client.Leads(ctx)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			slog.Info("stored admin token rejected")
			return m.Logout()
		}
		return err
	}
	p.printLeads(ctx, leads)

	line, err := p.ask(appI18n.T(ctx, "AdminPrompt"))
	if err != nil {
		return err
	}
	if strings.ToLower(line) != "s" {
		m.LeaveAdmin()
		return nil
	}
	if err := client.Logout(ctx); err != nil {
		slog.Warn("server logout", "error", err)
	}
	if err := m.Logout(); err != nil {
		return err
	}
	p.println(appI18n.T(ctx, "AdminLoggedOut"))
	return nil
}

func (p *player) printLeads(ctx context.Context, leads []model.Lead) {
	p.println("")
	if len(leads) == 0 {
		p.println(appI18n.T(ctx, "AdminNoLeads"))
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		appI18n.T(ctx, "CreatedAt"), appI18n.T(ctx, "Name"), appI18n.T(ctx, "Email"),
		appI18n.T(ctx, "WhatsApp"), appI18n.T(ctx, "Profile"), appI18n.T(ctx, "Score"))
	for _, l := range leads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			l.CreatedAt.Local().Format("2006-01-02 15:04"), l.Contact.Name, l.Contact.Email,
			l.Contact.Phone, l.Profile, l.Score)
	}
	_ = tw.Flush()
}
