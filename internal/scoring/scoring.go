// Package scoring turns a completed answer set into a score and a profile.
package scoring

import (
	"math"
	"sort"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

// Scale describes how a raw total is projected before band lookup.
type Scale struct {
	Mode   model.ScoreMode
	MinRaw int
	MaxRaw int
}

// Total sums the recorded point values.
func Total(answers []int) int {
	total := 0
	for _, p := range answers {
		total += p
	}
	return total
}

// RawRange returns the lowest and highest achievable totals for a question bank.
// Questions without options contribute nothing.
func RawRange(questions []model.Question) (lo, hi int) {
	for _, q := range questions {
		if len(q.Options) == 0 {
			continue
		}
		qMin, qMax := q.Options[0].Points, q.Options[0].Points
		for _, o := range q.Options[1:] {
			qMin = min(qMin, o.Points)
			qMax = max(qMax, o.Points)
		}
		lo += qMin
		hi += qMax
	}
	return lo, hi
}

// ScaleFor builds the scale configured on a diagnostic. Explicit raw bounds
// win over the bounds derived from its questions.
func ScaleFor(d model.Diagnostic) Scale {
	lo, hi := RawRange(d.Questions)
	if d.MinRaw != nil {
		lo = *d.MinRaw
	}
	if d.MaxRaw != nil {
		hi = *d.MaxRaw
	}
	mode := d.ScoreMode
	if mode != model.ScoreRaw {
		mode = model.ScoreNormalized
	}
	return Scale{Mode: mode, MinRaw: lo, MaxRaw: hi}
}

// Apply projects a raw total onto the scale.
func (s Scale) Apply(total int) int {
	if s.Mode == model.ScoreRaw {
		return total
	}
	return Normalize(total, s.MinRaw, s.MaxRaw)
}

// Normalize rescales total from [minRaw, maxRaw] onto [0, 100], rounding
// half up and clamping. A degenerate range yields 0.
func Normalize(total, minRaw, maxRaw int) int {
	if maxRaw <= minRaw {
		return 0
	}
	ratio := float64(total-minRaw) / float64(maxRaw-minRaw)
	score := int(math.Floor(ratio*100 + 0.5))
	return max(0, min(100, score))
}

// Resolve returns the band containing score. When score falls in a gap the
// lowest band is used if score is below every band, otherwise the highest.
// It returns false only when bands is empty.
func Resolve(score int, bands []model.ProfileBand) (model.ProfileBand, bool) {
	if len(bands) == 0 {
		return model.ProfileBand{}, false
	}
	for _, b := range bands {
		if b.Contains(score) {
			return b, true
		}
	}

	sorted := make([]model.ProfileBand, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScoreMin < sorted[j].ScoreMin
	})
	if score < sorted[0].ScoreMin {
		return sorted[0], true
	}
	return sorted[len(sorted)-1], true
}

var defaultTiers = []struct {
	upTo        int
	profile     string
	level       int
	description string
}{
	{25, "OPERADOR", 1, "Caos Financeiro - Seu foco está na sobrevivência imediata."},
	{50, "TÁTICO", 2, "Negócio em Construção - Você já possui organização básica."},
	{75, "ESTRATÉGICO", 3, "Estrutura Sustentável - Sua gestão é sustentável."},
	{math.MaxInt, "DECISOR", 4, "Lucro Livre - Você atingiu o nível de Lucro Livre."},
}

// DefaultBand classifies a normalized score when a diagnostic has no bands.
func DefaultBand(score int) model.ProfileBand {
	for _, t := range defaultTiers {
		if score <= t.upTo {
			return model.ProfileBand{
				Profile:     t.profile,
				Level:       t.level,
				Description: t.description,
			}
		}
	}
	return model.ProfileBand{}
}

// DefaultProfiles lists the built-in profile names in level order.
func DefaultProfiles() []string {
	names := make([]string, len(defaultTiers))
	for i, t := range defaultTiers {
		names[i] = t.profile
	}
	return names
}

// Evaluate scores answers against a diagnostic and resolves its profile.
func Evaluate(d model.Diagnostic, answers []int) model.Result {
	total := Total(answers)
	scale := ScaleFor(d)

	if len(d.Bands) == 0 {
		score := Normalize(total, scale.MinRaw, scale.MaxRaw)
		return resultFrom(total, score, DefaultBand(score))
	}

	score := scale.Apply(total)
	band, _ := Resolve(score, d.Bands)
	return resultFrom(total, score, band)
}

func resultFrom(total, score int, b model.ProfileBand) model.Result {
	return model.Result{
		RawTotal:            total,
		Score:               score,
		Profile:             b.Profile,
		Level:               b.Level,
		Description:         b.Description,
		Signals:             nonNil(b.Signals),
		MainRisk:            b.MainRisk,
		EvolutionPlan:       nonNil(b.EvolutionPlan),
		RecommendedSolution: b.RecommendedSolution,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
