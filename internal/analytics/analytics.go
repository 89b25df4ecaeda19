// Package analytics groups and summarises captured leads for the admin
// dashboard.
package analytics

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/scoring"
)

// Column is one kanban lane.
type Column struct {
	Profile string
	Leads   []model.Lead
}

// ProfileCount is the number of leads that landed in a profile.
type ProfileCount struct {
	Profile string `json:"profile"`
	Count   int    `json:"count"`
}

// Stats summarises a set of leads.
type Stats struct {
	Total        int
	Counts       []ProfileCount
	AverageRaw   float64
	AverageScore float64
	TopProfile   string // "" when there are no leads
}

// Profiles returns the profile names of the diagnostics' bands ordered by
// level, without duplicates. With no bands at all the built-in tiers are used.
func Profiles(diagnostics []model.Diagnostic) []string {
	type entry struct {
		name  string
		level int
		order int
	}
	seen := map[string]bool{}
	var entries []entry
	for _, d := range diagnostics {
		for _, b := range d.Bands {
			if seen[b.Profile] {
				continue
			}
			seen[b.Profile] = true
			entries = append(entries, entry{b.Profile, b.Level, len(entries)})
		}
	}
	if len(entries) == 0 {
		return scoring.DefaultProfiles()
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].level < entries[j].level })
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Filter keeps the leads whose name or email contains query, ignoring case.
// An empty query keeps everything.
func Filter(leads []model.Lead, query string) []model.Lead {
	query = strings.TrimSpace(query)
	if query == "" {
		return leads
	}
	fold := cases.Fold()
	q := fold.String(query)
	var out []model.Lead
	for _, l := range leads {
		if strings.Contains(fold.String(l.Contact.Name), q) || strings.Contains(fold.String(l.Contact.Email), q) {
			out = append(out, l)
		}
	}
	return out
}

// Board splits leads into one column per profile, in the given order. Leads
// with a profile outside the list get extra columns after the known ones.
func Board(leads []model.Lead, profiles []string) []Column {
	index := make(map[string]int, len(profiles))
	cols := make([]Column, 0, len(profiles))
	for _, p := range profiles {
		if _, ok := index[p]; ok {
			continue
		}
		index[p] = len(cols)
		cols = append(cols, Column{Profile: p})
	}
	for _, l := range leads {
		i, ok := index[l.Profile]
		if !ok {
			i = len(cols)
			index[l.Profile] = i
			cols = append(cols, Column{Profile: l.Profile})
		}
		cols[i].Leads = append(cols[i].Leads, l)
	}
	return cols
}

// Compute counts leads per profile and averages their totals and scores.
// Ties for the top profile go to the earlier column.
func Compute(leads []model.Lead, profiles []string) Stats {
	st := Stats{Total: len(leads)}
	var rawSum, scoreSum int
	for _, l := range leads {
		rawSum += l.RawTotal
		scoreSum += l.Score
	}
	if len(leads) > 0 {
		st.AverageRaw = float64(rawSum) / float64(len(leads))
		st.AverageScore = float64(scoreSum) / float64(len(leads))
	}

	best := 0
	for _, col := range Board(leads, profiles) {
		n := len(col.Leads)
		st.Counts = append(st.Counts, ProfileCount{Profile: col.Profile, Count: n})
		if n > best {
			best = n
			st.TopProfile = col.Profile
		}
	}
	return st
}
