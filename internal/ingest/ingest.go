// Package ingest reads lead files (CSV or XLSX) into Lead rows. Columns are
// matched by header name, so exports from different procurement portals load
// without reshaping.
package ingest

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/lookup"
	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/phone"
)

// header aliases, all compared lowercased
var (
	colIdentifier = []string{"cnpj", "identifier", "id"}
	colName       = []string{"name", "nome", "razao_social", "razao social"}
	colPhones     = []string{"phones", "phone", "telefone", "telefones"}
	colEmail      = []string{"email", "e-mail"}
	colCategory   = []string{"category", "categoria"}
	colSource     = []string{"source", "origem"}
	colValue      = []string{"value", "valor", "observed_value"}
)

// Result reports what a file yielded.
type Result struct {
	Leads   []model.Lead
	Skipped int // rows dropped for a missing or malformed tax id
}

// ReadLeads parses a lead file by extension. defaultSource fills the source
// column when the file has none.
func ReadLeads(path, defaultSource string) (*Result, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.Errorf("ingest: %s has no data rows", path)
	}

	cols := mapColumns(rows[0])
	if cols.identifier < 0 {
		return nil, eris.Errorf("ingest: %s has no tax id column (want one of %v)", path, colIdentifier)
	}

	res := &Result{}
	for _, row := range rows[1:] {
		lead, ok := buildLead(row, cols, defaultSource)
		if !ok {
			res.Skipped++
			continue
		}
		res.Leads = append(res.Leads, lead)
	}
	return res, nil
}

type columns struct {
	identifier, name, phones, email, category, source, value int
}

func mapColumns(header []string) columns {
	c := columns{identifier: -1, name: -1, phones: -1, email: -1, category: -1, source: -1, value: -1}
	find := func(aliases []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, a := range aliases {
				if h == a {
					return i
				}
			}
		}
		return -1
	}
	c.identifier = find(colIdentifier)
	c.name = find(colName)
	c.phones = find(colPhones)
	c.email = find(colEmail)
	c.category = find(colCategory)
	c.source = find(colSource)
	c.value = find(colValue)
	return c
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func buildLead(row []string, cols columns, defaultSource string) (model.Lead, bool) {
	id, err := lookup.NormalizeLeadID(cell(row, cols.identifier))
	if err != nil {
		zap.L().Warn("skipping lead row", zap.String("raw_id", cell(row, cols.identifier)))
		return model.Lead{}, false
	}

	lead := model.Lead{
		Identifier: id,
		Name:       cell(row, cols.name),
		Phones:     phone.Merge("", cell(row, cols.phones)),
		Email:      strings.ToLower(cell(row, cols.email)),
		Category:   strings.ToLower(cell(row, cols.category)),
		Source:     strings.ToLower(cell(row, cols.source)),
	}
	if lead.Source == "" {
		lead.Source = defaultSource
	}
	if raw := cell(row, cols.value); raw != "" {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); err == nil {
			lead.ObservedValue = v
		}
	}
	return lead, true
}
