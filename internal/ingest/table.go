// Package ingest parses tabular extracts of transaction, invoice and company
// data. Column names are matched case-insensitively against known aliases,
// and amounts given in lacs or crores are converted to base units on the way in.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
)

// ErrMissingColumn is wrapped by MissingColumnError.
var ErrMissingColumn = errors.New("missing required column")

// MissingColumnError names a required field absent from the extract.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingColumn, e.Column)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// column describes one logical field. The first alias is the canonical name.
// Aliases listed in lacs or crores hold scaled amounts.
type column struct {
	aliases  []string
	lacs     []string
	crores   []string
	required bool
}

func (c column) name() string { return c.aliases[0] }

// table is a header-indexed CSV reader.
type table struct {
	r     *csv.Reader
	index map[string]int
	scale map[string]float64
	line  int
}

func newTable(r io.Reader, cols []column) (*table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("newTable: empty extract")
	}
	if err != nil {
		return nil, fmt.Errorf("newTable: read header: %w", err)
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[normalize(h)] = i
	}

	t := &table{r: cr, index: make(map[string]int), scale: make(map[string]float64), line: 1}
	for _, c := range cols {
		found := false
		for _, group := range []struct {
			names []string
			scale float64
		}{
			{c.aliases, 1},
			{c.lacs, domain.Lac},
			{c.crores, domain.Crore},
		} {
			for _, a := range group.names {
				if i, ok := positions[normalize(a)]; ok {
					t.index[c.name()] = i
					t.scale[c.name()] = group.scale
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found && c.required {
			return nil, &MissingColumnError{Column: c.name()}
		}
	}
	return t, nil
}

// next returns the following non-blank row, or io.EOF.
func (t *table) next() ([]string, error) {
	for {
		rec, err := t.r.Read()
		if err != nil {
			return nil, err
		}
		t.line, _ = t.r.FieldPos(0)
		if !blank(rec) {
			return rec, nil
		}
	}
}

func (t *table) has(col string) bool {
	_, ok := t.index[col]
	return ok
}

func (t *table) str(rec []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// number parses an optional number, scaled to base units. Blank and
// placeholder cells yield nil.
func (t *table) number(rec []string, col string) (*float64, error) {
	raw := t.str(rec, col)
	if isNull(raw) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSuffix(raw, "%"), ",", ""), 64)
	if err != nil {
		return nil, fmt.Errorf("line %d: column %q: %q is not a number", t.line, col, raw)
	}
	v *= t.scale[col]
	return &v, nil
}

// amount parses a number where blanks mean zero.
func (t *table) amount(rec []string, col string) (float64, error) {
	v, err := t.number(rec, col)
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

func (t *table) id(rec []string, col string) (int64, error) {
	raw := t.str(rec, col)
	if isNull(raw) {
		return 0, fmt.Errorf("line %d: column %q is empty", t.line, col)
	}
	// Integer IDs are often exported as floats.
	raw = strings.TrimSuffix(raw, ".0")
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: column %q: %q is not an integer", t.line, col, raw)
	}
	return v, nil
}

func (t *table) date(rec []string, col string, required bool) (civil.Date, error) {
	raw := t.str(rec, col)
	if isNull(raw) {
		if required {
			return civil.Date{}, fmt.Errorf("line %d: column %q is empty", t.line, col)
		}
		return civil.Date{}, nil
	}
	// Timestamps keep only their date part.
	if len(raw) > 10 && (raw[10] == ' ' || raw[10] == 'T') {
		raw = raw[:10]
	}
	d, err := fiscal.Parse(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("line %d: column %q: %w", t.line, col, err)
	}
	return d, nil
}

func (t *table) flag(rec []string, col string) bool {
	switch strings.ToLower(t.str(rec, col)) {
	case "true", "t", "yes", "y", "1":
		return true
	}
	return false
}

func normalize(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimPrefix(h, "\ufeff"))), " ")
}

func isNull(v string) bool {
	switch strings.ToLower(v) {
	case "", "-", "na", "n/a", "nan", "null", "none", "data na":
		return true
	}
	return false
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
