package wire

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

const dbShaped = `{
  "id": "d1",
  "titulo": "Diagnóstico",
  "slug": "diagnostico-financeiro",
  "perguntas": [
    {"id": "q1", "texto": "Pergunta?", "opcoes": [{"texto": "A", "pontos": 1}, {"texto": "B", "pontos": 4}]}
  ],
  "perfis_resultado": [
    {"perfil": "CAOS", "pontuacao_min": 0, "pontuacao_max": 25, "nivel": 1, "sinais": null, "plano_evolucao": ["p1"]}
  ]
}`

func TestDiagnosticModelFromDatabaseShape(t *testing.T) {
	var w Diagnostic
	if err := json.Unmarshal([]byte(dbShaped), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d := w.Model()

	if !d.IsActive {
		t.Error("missing is_active should map to active")
	}
	if d.ScoreMode != model.ScoreNormalized {
		t.Errorf("score mode = %q, want normalized", d.ScoreMode)
	}
	if len(d.Questions) != 1 || d.Questions[0].Text != "Pergunta?" {
		t.Fatalf("questions = %+v", d.Questions)
	}
	if got := d.Questions[0].Options[1]; got.Text != "B" || got.Points != 4 {
		t.Errorf("option = %+v", got)
	}
	b := d.Bands[0]
	if b.Profile != "CAOS" || b.ScoreMax != 25 || b.Level != 1 {
		t.Errorf("band = %+v", b)
	}
	if b.Signals == nil || len(b.Signals) != 0 {
		t.Errorf("null sinais should become an empty list, got %#v", b.Signals)
	}
	if len(b.EvolutionPlan) != 1 {
		t.Errorf("plano_evolucao = %v", b.EvolutionPlan)
	}
}

func TestDiagnosticRawModeAndBounds(t *testing.T) {
	lo, hi := 18, 72
	inactive := false
	w := Diagnostic{Slug: "x", ModoPontuacao: "raw", IsActive: &inactive, PontuacaoMinBruta: &lo, PontuacaoMaxBruta: &hi}
	d := w.Model()
	if d.ScoreMode != model.ScoreRaw || d.IsActive {
		t.Fatalf("model = %+v", d)
	}
	if *d.MinRaw != 18 || *d.MaxRaw != 72 {
		t.Errorf("bounds = %d..%d", *d.MinRaw, *d.MaxRaw)
	}

	back := FromDiagnostic(d)
	if back.ModoPontuacao != "raw" || back.IsActive == nil || *back.IsActive {
		t.Errorf("FromDiagnostic = %+v", back)
	}
}

func TestFromDiagnosticEmitsEmptyLists(t *testing.T) {
	data, err := json.Marshal(FromDiagnostic(model.Diagnostic{Slug: "s", Bands: []model.ProfileBand{{Profile: "P"}}}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"perguntas":[]`, `"sinais":[]`, `"plano_evolucao":[]`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, "created_at") {
		t.Errorf("zero created_at should be omitted: %s", s)
	}
}

func TestLeadPayloadKeys(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	res := model.Result{RawTotal: 54, Score: 67, Profile: "ESTRUTURA SUSTENTÁVEL"}
	p := NewLeadPayload(model.Contact{Name: "Ana", Email: "ana@example.com", Phone: "11999999999"}, []int{3, 3}, res, "d1", at)

	if !p.CreatedAt.Equal(at) || p.CreatedAt.Location() != time.UTC {
		t.Errorf("created_at should be the same instant in UTC, got %v", p.CreatedAt)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"nome", "email", "whatsapp", "respostas", "pontuacao_total", "perfil", "diagnostico_id", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if raw["pontuacao_total"].(float64) != 54 {
		t.Errorf("pontuacao_total = %v", raw["pontuacao_total"])
	}

	lead := p.Model()
	if lead.Contact.Phone != "11999999999" || lead.Score != 67 || lead.DiagnosticID != "d1" {
		t.Errorf("Model() = %+v", lead)
	}
}

func TestFromLeadFlattensPayload(t *testing.T) {
	l := model.Lead{ID: "l1", Contact: model.Contact{Name: "Bia"}, Profile: "X"}
	data, err := json.Marshal(FromLead(l))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"id":"l1"`) || !strings.Contains(s, `"nome":"Bia"`) || !strings.Contains(s, `"respostas":[]`) {
		t.Errorf("unexpected lead JSON: %s", s)
	}
}
