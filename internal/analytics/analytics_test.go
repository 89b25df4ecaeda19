package analytics

import (
	"reflect"
	"testing"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

func lead(name, email, profile string, raw, score int) model.Lead {
	return model.Lead{
		ID:       name,
		Contact:  model.Contact{Name: name, Email: email},
		Profile:  profile,
		RawTotal: raw,
		Score:    score,
	}
}

func names(leads []model.Lead) []string {
	var out []string
	for _, l := range leads {
		out = append(out, l.Contact.Name)
	}
	return out
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name        string
		diagnostics []model.Diagnostic
		want        []string
	}{
		{"no diagnostics", nil, []string{"OPERADOR", "TÁTICO", "ESTRATÉGICO", "DECISOR"}},
		{"ordered by level", []model.Diagnostic{{Bands: []model.ProfileBand{
			{Profile: "C", Level: 3}, {Profile: "A", Level: 1}, {Profile: "B", Level: 2},
		}}}, []string{"A", "B", "C"}},
		{"deduplicated across diagnostics", []model.Diagnostic{
			{Bands: []model.ProfileBand{{Profile: "A", Level: 1}, {Profile: "B", Level: 2}}},
			{Bands: []model.ProfileBand{{Profile: "B", Level: 2}, {Profile: "Z", Level: 2}}},
		}, []string{"A", "B", "Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Profiles(tt.diagnostics)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Profiles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	leads := []model.Lead{
		lead("Ana Souza", "ana@x.com", "A", 0, 0),
		lead("Bruno", "bruno@empresa.com.br", "A", 0, 0),
		lead("JOÃO", "joao@x.com", "A", 0, 0),
	}
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Ana Souza", "Bruno", "JOÃO"}},
		{"  ", []string{"Ana Souza", "Bruno", "JOÃO"}},
		{"souza", []string{"Ana Souza"}},
		{"EMPRESA", []string{"Bruno"}},
		{"joão", []string{"JOÃO"}},
		{"x.com", []string{"Ana Souza", "JOÃO"}},
		{"nada", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := names(Filter(leads, tt.query))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestBoard(t *testing.T) {
	leads := []model.Lead{
		lead("a", "", "B", 0, 0),
		lead("b", "", "X", 0, 0),
		lead("c", "", "A", 0, 0),
		lead("d", "", "B", 0, 0),
	}
	cols := Board(leads, []string{"A", "B", "C"})

	var profiles []string
	for _, c := range cols {
		profiles = append(profiles, c.Profile)
	}
	if !reflect.DeepEqual(profiles, []string{"A", "B", "C", "X"}) {
		t.Fatalf("columns = %v", profiles)
	}
	if got := names(cols[1].Leads); !reflect.DeepEqual(got, []string{"a", "d"}) {
		t.Errorf("column B = %v", got)
	}
	if len(cols[2].Leads) != 0 {
		t.Errorf("column C should be empty, got %d", len(cols[2].Leads))
	}
	if got := names(cols[3].Leads); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("column X = %v", got)
	}
}

func TestCompute(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		st := Compute(nil, []string{"A", "B"})
		if st.Total != 0 || st.AverageRaw != 0 || st.AverageScore != 0 || st.TopProfile != "" {
			t.Errorf("unexpected stats %+v", st)
		}
		if len(st.Counts) != 2 || st.Counts[0].Count != 0 {
			t.Errorf("counts = %+v", st.Counts)
		}
	})

	t.Run("counts and averages", func(t *testing.T) {
		leads := []model.Lead{
			lead("a", "", "A", 20, 10),
			lead("b", "", "B", 40, 50),
			lead("c", "", "B", 60, 90),
		}
		st := Compute(leads, []string{"A", "B"})
		if st.Total != 3 {
			t.Errorf("Total = %d", st.Total)
		}
		if st.AverageRaw != 40 || st.AverageScore != 50 {
			t.Errorf("averages = %v, %v", st.AverageRaw, st.AverageScore)
		}
		if st.TopProfile != "B" {
			t.Errorf("TopProfile = %q, want B", st.TopProfile)
		}
		want := []ProfileCount{{"A", 1}, {"B", 2}}
		if !reflect.DeepEqual(st.Counts, want) {
			t.Errorf("Counts = %v, want %v", st.Counts, want)
		}
	})

	t.Run("tie goes to earlier column", func(t *testing.T) {
		leads := []model.Lead{lead("a", "", "B", 0, 0), lead("b", "", "A", 0, 0)}
		if st := Compute(leads, []string{"A", "B"}); st.TopProfile != "A" {
			t.Errorf("TopProfile = %q, want A", st.TopProfile)
		}
	})
}
