package export

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

func sampleRecords() []model.LeadRecord {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	return []model.LeadRecord{
		{ID: "1", Name: "Ana", Email: "ana@x.com", Phone: "11999999999", DiagnosticTitle: "Score Lucro Livre",
			Profile: "TÁTICO", RawTotal: 40, Score: 44, Answers: []int{1, 3, 4}, CreatedAt: at},
		{ID: "2", Name: "Bia", Email: "bia@x.com", Phone: "21988887777",
			Profile: "TÁTICO", RawTotal: 45, Score: 50, Answers: []int{2}, CreatedAt: at.Add(-time.Hour)},
		{ID: "3", Name: "Caio", Email: "caio@x.com", Phone: "31977776666",
			Profile: "DECISOR", RawTotal: 70, Score: 90, CreatedAt: at.Add(-2 * time.Hour)},
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if err := JSON(&buf, sampleRecords(), at); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var got model.LeadExport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Total != 3 || len(got.Leads) != 3 || !got.ExportedAt.Equal(at) {
		t.Errorf("unexpected export %+v", got)
	}

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := JSON(&buf, nil, at); err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"leads": []`)) {
			t.Errorf("empty export should carry an empty list, got %s", buf.String())
		}
	})
}

func TestXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := XLSX(&buf, sampleRecords()); err != nil {
		t.Fatalf("XLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, []string{leadsSheet, profilesSheet}) {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := f.GetRows(leadsSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][1] != "Nome" || rows[0][8] != "Respostas" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2026-03-10 14:30", "Ana", "ana@x.com", "11999999999", "Score Lucro Livre", "TÁTICO", "40", "44", "1,3,4"}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("row 1 = %v, want %v", rows[1], want)
	}

	summary, err := f.GetRows(profilesSheet)
	if err != nil {
		t.Fatalf("GetRows summary: %v", err)
	}
	wantSummary := [][]string{{"Perfil", "Leads"}, {"TÁTICO", "2"}, {"DECISOR", "1"}}
	if !reflect.DeepEqual(summary, wantSummary) {
		t.Errorf("summary = %v, want %v", summary, wantSummary)
	}
}

func TestJoinAnswers(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{4}, "4"},
		{[]int{1, 2, 3}, "1,2,3"},
	}
	for _, tt := range tests {
		if got := joinAnswers(tt.in); got != tt.want {
			t.Errorf("joinAnswers(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
