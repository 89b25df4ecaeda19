// Package wire holds the JSON/YAML shapes exchanged over the HTTP API and in
// seed files, and the pure mappings between them and the domain model.
package wire

import (
	"time"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

// Option is the wire form of model.Option.
type Option struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Texto  string `json:"texto" yaml:"texto"`
	Pontos int    `json:"pontos" yaml:"pontos"`
}

// Question is the wire form of model.Question.
type Question struct {
	ID     string   `json:"id,omitempty" yaml:"id,omitempty"`
	Texto  string   `json:"texto" yaml:"texto"`
	Opcoes []Option `json:"opcoes" yaml:"opcoes"`
}

// Profile is the wire form of model.ProfileBand.
type Profile struct {
	ID                 string   `json:"id,omitempty" yaml:"id,omitempty"`
	Perfil             string   `json:"perfil" yaml:"perfil"`
	PontuacaoMin       int      `json:"pontuacao_min" yaml:"pontuacao_min"`
	PontuacaoMax       int      `json:"pontuacao_max" yaml:"pontuacao_max"`
	Nivel              int      `json:"nivel" yaml:"nivel"`
	Descricao          string   `json:"descricao" yaml:"descricao"`
	RiscoPrincipal     string   `json:"risco_principal" yaml:"risco_principal"`
	SolucaoRecomendada string   `json:"solucao_recomendada" yaml:"solucao_recomendada"`
	Sinais             []string `json:"sinais" yaml:"sinais"`
	PlanoEvolucao      []string `json:"plano_evolucao" yaml:"plano_evolucao"`
}

// Diagnostic is the wire form of model.Diagnostic.
type Diagnostic struct {
	ID                string     `json:"id,omitempty" yaml:"id,omitempty"`
	Titulo            string     `json:"titulo" yaml:"titulo"`
	Descricao         string     `json:"descricao" yaml:"descricao"`
	Slug              string     `json:"slug" yaml:"slug"`
	IsActive          *bool      `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	ModoPontuacao     string     `json:"modo_pontuacao,omitempty" yaml:"modo_pontuacao,omitempty"`
	PontuacaoMinBruta *int       `json:"pontuacao_min_bruta,omitempty" yaml:"pontuacao_min_bruta,omitempty"`
	PontuacaoMaxBruta *int       `json:"pontuacao_max_bruta,omitempty" yaml:"pontuacao_max_bruta,omitempty"`
	Perguntas         []Question `json:"perguntas" yaml:"perguntas"`
	PerfisResultado   []Profile  `json:"perfis_resultado" yaml:"perfis_resultado"`
	CreatedAt         *time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// LeadPayload is the body of POST /api/leads and of the webhook call.
type LeadPayload struct {
	Nome           string    `json:"nome"`
	Email          string    `json:"email"`
	Whatsapp       string    `json:"whatsapp"`
	Respostas      []int     `json:"respostas"`
	PontuacaoTotal int       `json:"pontuacao_total"`
	Score          int       `json:"score"`
	Perfil         string    `json:"perfil"`
	DiagnosticoID  string    `json:"diagnostico_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Lead is a stored lead as returned by GET /api/leads.
type Lead struct {
	ID string `json:"id"`
	LeadPayload
}

// Result is the wire form of model.Result.
type Result struct {
	PontuacaoTotal     int      `json:"pontuacao_total"`
	Score              int      `json:"score"`
	Perfil             string   `json:"perfil"`
	Descricao          string   `json:"descricao"`
	Nivel              int      `json:"nivel"`
	Sinais             []string `json:"sinais"`
	RiscoPrincipal     string   `json:"risco_principal"`
	PlanoEvolucao      []string `json:"plano_evolucao"`
	SolucaoRecomendada string   `json:"solucao_recomendada"`
}

// FromDiagnostic maps a domain diagnostic onto its wire form.
func FromDiagnostic(d model.Diagnostic) Diagnostic {
	active := d.IsActive
	out := Diagnostic{
		ID:                d.ID,
		Titulo:            d.Title,
		Descricao:         d.Description,
		Slug:              d.Slug,
		IsActive:          &active,
		ModoPontuacao:     string(d.ScoreMode),
		PontuacaoMinBruta: d.MinRaw,
		PontuacaoMaxBruta: d.MaxRaw,
		Perguntas:         make([]Question, 0, len(d.Questions)),
		PerfisResultado:   make([]Profile, 0, len(d.Bands)),
	}
	if !d.CreatedAt.IsZero() {
		created := d.CreatedAt
		out.CreatedAt = &created
	}
	if !d.UpdatedAt.IsZero() {
		updated := d.UpdatedAt
		out.UpdatedAt = &updated
	}
	for _, q := range d.Questions {
		wq := Question{ID: q.ID, Texto: q.Text, Opcoes: make([]Option, 0, len(q.Options))}
		for _, o := range q.Options {
			wq.Opcoes = append(wq.Opcoes, Option{ID: o.ID, Texto: o.Text, Pontos: o.Points})
		}
		out.Perguntas = append(out.Perguntas, wq)
	}
	for _, b := range d.Bands {
		out.PerfisResultado = append(out.PerfisResultado, Profile{
			ID:                 b.ID,
			Perfil:             b.Profile,
			PontuacaoMin:       b.ScoreMin,
			PontuacaoMax:       b.ScoreMax,
			Nivel:              b.Level,
			Descricao:          b.Description,
			RiscoPrincipal:     b.MainRisk,
			SolucaoRecomendada: b.RecommendedSolution,
			Sinais:             stringsOrEmpty(b.Signals),
			PlanoEvolucao:      stringsOrEmpty(b.EvolutionPlan),
		})
	}
	return out
}

// Model maps the wire diagnostic onto the domain type. A missing is_active
// means active; an unknown score mode means normalized.
func (w Diagnostic) Model() model.Diagnostic {
	d := model.Diagnostic{
		ID:          w.ID,
		Title:       w.Titulo,
		Description: w.Descricao,
		Slug:        w.Slug,
		IsActive:    w.IsActive == nil || *w.IsActive,
		ScoreMode:   model.ScoreNormalized,
		MinRaw:      w.PontuacaoMinBruta,
		MaxRaw:      w.PontuacaoMaxBruta,
		Questions:   make([]model.Question, 0, len(w.Perguntas)),
		Bands:       make([]model.ProfileBand, 0, len(w.PerfisResultado)),
	}
	if model.ScoreMode(w.ModoPontuacao) == model.ScoreRaw {
		d.ScoreMode = model.ScoreRaw
	}
	if w.CreatedAt != nil {
		d.CreatedAt = *w.CreatedAt
	}
	if w.UpdatedAt != nil {
		d.UpdatedAt = *w.UpdatedAt
	}
	for _, q := range w.Perguntas {
		mq := model.Question{ID: q.ID, Text: q.Texto, Options: make([]model.Option, 0, len(q.Opcoes))}
		for _, o := range q.Opcoes {
			mq.Options = append(mq.Options, model.Option{ID: o.ID, Text: o.Texto, Points: o.Pontos})
		}
		d.Questions = append(d.Questions, mq)
	}
	for _, p := range w.PerfisResultado {
		d.Bands = append(d.Bands, model.ProfileBand{
			ID:                  p.ID,
			Profile:             p.Perfil,
			ScoreMin:            p.PontuacaoMin,
			ScoreMax:            p.PontuacaoMax,
			Level:               p.Nivel,
			Description:         p.Descricao,
			MainRisk:            p.RiscoPrincipal,
			RecommendedSolution: p.SolucaoRecomendada,
			Signals:             stringsOrEmpty(p.Sinais),
			EvolutionPlan:       stringsOrEmpty(p.PlanoEvolucao),
		})
	}
	return d
}

// FromLead maps a stored lead onto its wire form.
func FromLead(l model.Lead) Lead {
	return Lead{
		ID: l.ID,
		LeadPayload: LeadPayload{
			Nome:           l.Contact.Name,
			Email:          l.Contact.Email,
			Whatsapp:       l.Contact.Phone,
			Respostas:      intsOrEmpty(l.Answers),
			PontuacaoTotal: l.RawTotal,
			Score:          l.Score,
			Perfil:         l.Profile,
			DiagnosticoID:  l.DiagnosticID,
			CreatedAt:      l.CreatedAt,
		},
	}
}

// NewLeadPayload builds the submission body for a finished run.
func NewLeadPayload(c model.Contact, answers []int, res model.Result, diagnosticID string, at time.Time) LeadPayload {
	return LeadPayload{
		Nome:           c.Name,
		Email:          c.Email,
		Whatsapp:       c.Phone,
		Respostas:      intsOrEmpty(answers),
		PontuacaoTotal: res.RawTotal,
		Score:          res.Score,
		Perfil:         res.Profile,
		DiagnosticoID:  diagnosticID,
		CreatedAt:      at.UTC(),
	}
}

// Model maps a lead payload onto the domain type.
func (p LeadPayload) Model() model.Lead {
	return model.Lead{
		Contact:      model.Contact{Name: p.Nome, Email: p.Email, Phone: p.Whatsapp},
		Answers:      intsOrEmpty(p.Respostas),
		RawTotal:     p.PontuacaoTotal,
		Score:        p.Score,
		Profile:      p.Perfil,
		DiagnosticID: p.DiagnosticoID,
		CreatedAt:    p.CreatedAt,
	}
}

// FromResult maps a scoring result onto its wire form.
func FromResult(r model.Result) Result {
	return Result{
		PontuacaoTotal:     r.RawTotal,
		Score:              r.Score,
		Perfil:             r.Profile,
		Descricao:          r.Description,
		Nivel:              r.Level,
		Sinais:             stringsOrEmpty(r.Signals),
		RiscoPrincipal:     r.MainRisk,
		PlanoEvolucao:      stringsOrEmpty(r.EvolutionPlan),
		SolucaoRecomendada: r.RecommendedSolution,
	}
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func intsOrEmpty(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
