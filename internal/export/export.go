// Package export writes captured leads as JSON or as an XLSX workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

const (
	leadsSheet    = "Leads"
	profilesSheet = "Perfis"
	timeLayout    = "2006-01-02 15:04"
)

var leadHeader = []any{"Data", "Nome", "Email", "WhatsApp", "Diagnóstico", "Perfil", "Pontuação total", "Score", "Respostas"}

// JSON writes records as an indented model.LeadExport document.
func JSON(w io.Writer, records []model.LeadRecord, exportedAt time.Time) error {
	if records == nil {
		records = []model.LeadRecord{}
	}
	data, err := json.MarshalIndent(model.LeadExport{
		ExportedAt: exportedAt.UTC(),
		Total:      len(records),
		Leads:      records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// XLSX writes a workbook with one row per lead and a per-profile summary.
func XLSX(w io.Writer, records []model.LeadRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", leadsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(leadsSheet, "A1", &leadHeader); err != nil {
		return err
	}
	counts := map[string]int{}
	var order []string
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.CreatedAt.UTC().Format(timeLayout), r.Name, r.Email, r.Phone,
			r.DiagnosticTitle, r.Profile, r.RawTotal, r.Score, joinAnswers(r.Answers),
		}
		if err := f.SetSheetRow(leadsSheet, cell, &row); err != nil {
			return err
		}
		if _, ok := counts[r.Profile]; !ok {
			order = append(order, r.Profile)
		}
		counts[r.Profile]++
	}
	if err := f.SetRowStyle(leadsSheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(leadsSheet, "A", "I", 18); err != nil {
		return err
	}

	if _, err := f.NewSheet(profilesSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	header := []any{"Perfil", "Leads"}
	if err := f.SetSheetRow(profilesSheet, "A1", &header); err != nil {
		return err
	}
	for i, p := range order {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{p, counts[p]}
		if err := f.SetSheetRow(profilesSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(profilesSheet, 1, 1, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func joinAnswers(answers []int) string {
	parts := make([]string, len(answers))
	for i, a := range answers {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, ",")
}
