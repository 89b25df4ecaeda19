// Package prompts renders the lead briefing prompts sent to the LLM.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// Files holds the built-in templates, one insight_<variant>.txt per variant.
//
//go:embed insight_*.txt
var Files embed.FS

var leadNameRegex = regexp.MustCompile(`(?i)</?\s*lead-name\b[^>]*>`)

const maxFieldRunes = 200

// PromptVariant selects how much detail the briefing asks for.
type PromptVariant string

const (
	// PromptBrief asks for a two-sentence briefing.
	PromptBrief PromptVariant = "brief"
	// PromptStandard is the default briefing.
	PromptStandard PromptVariant = "standard"
	// PromptDetailed adds the evolution plan and asks for a full meeting plan.
	PromptDetailed PromptVariant = "detailed"
)

var validVariants = map[PromptVariant]bool{
	PromptBrief:    true,
	PromptStandard: true,
	PromptDetailed: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// AnswerLine is one question with the option the lead picked.
type AnswerLine struct {
	Question string
	Answer   string
	Points   int
}

// InsightData holds template data for a lead briefing.
type InsightData struct {
	DiagnosticTitle     string
	LeadName            string
	Profile             string
	Level               int
	Score               int
	RawTotal            int
	Description         string
	MainRisk            string
	RecommendedSolution string
	Signals             []string
	EvolutionPlan       []string
	Answers             []AnswerLine
}

// Load parses the templates from fsys once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptBrief, PromptStandard, PromptDetailed} {
			file := "insight_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(file).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildInsightPrompt renders the briefing prompt for variant.
func BuildInsightPrompt(variant PromptVariant, data InsightData) (string, error) {
	if templates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data.LeadName = sanitize(data.LeadName)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips the lead-name delimiters from user-typed text and caps its
// length.
func sanitize(s string) string {
	s = leadNameRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "[sem nome]"
	}
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes])
	}
	return s
}
