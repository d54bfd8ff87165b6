// Package corpus turns raw movie rows into the cleaned, deduplicated corpus
// that the vector index is built from.
package corpus

import (
	"context"
	"errors"
	"strings"

	"movierag/internal/domain"
	"movierag/internal/logging"
)

// Source columns in the order they appear in the flattened document text.
var baseColumns = []string{
	domain.ColTitle,
	domain.ColYear,
	domain.ColCertificate,
	domain.ColRuntime,
	domain.ColGenre,
	domain.ColRating,
	domain.ColDescription,
	domain.ColDirector,
	domain.ColCast,
	domain.ColVotes,
}

// Columns that are normalised as free text.
var normalizedColumns = map[string]bool{
	domain.ColTitle:       true,
	domain.ColGenre:       true,
	domain.ColDescription: true,
	domain.ColDirector:    true,
	domain.ColCast:        true,
}

// Numeric source columns imputed with their median. Year is handled
// separately because it is also extracted from the title.
var numericColumns = []string{domain.ColRating, domain.ColVotes, domain.ColRuntime}

// Result is the output of a corpus build.
type Result struct {
	// Columns is the cleaned table header in document field order.
	Columns   []string
	Records   []domain.CleanedRecord
	Documents []domain.CorpusDocument
	Encoders  map[string]*LabelEncoder
	Scaler    *StandardScaler
	Stats     Stats
}

// Stats summarises what the build did to the data.
type Stats struct {
	RawRows           int            `json:"raw_rows"`
	Rows              int            `json:"rows"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	Imputed           map[string]int `json:"imputed"`
	DroppedColumns    []string       `json:"dropped_columns,omitempty"`
}

// Builder cleans raw rows and flattens them into corpus documents.
type Builder struct{}

// NewBuilder creates a corpus builder.
func NewBuilder() *Builder { return &Builder{} }

// Build cleans the table, derives features, removes duplicates and renders
// one document per remaining row. It fails only when the table has no rows.
func (b *Builder) Build(ctx context.Context, table domain.RawTable) (*Result, error) {
	if len(table.Records) == 0 {
		return nil, &domain.DataLoadError{Source: "dataset", Err: errors.New("no rows")}
	}
	log := logging.Ctx(ctx)

	stats := Stats{RawRows: len(table.Records), Imputed: make(map[string]int)}
	extras := extraColumns(table)
	records := make([]domain.CleanedRecord, len(table.Records))

	for i, raw := range table.Records {
		rec := &records[i]
		rec.Title = cleanText(raw.Title.String, raw.Title.Valid)
		rec.Genre = cleanText(raw.Genre.String, raw.Genre.Valid)
		rec.Description = cleanText(raw.Description.String, raw.Description.Valid)
		rec.Director = cleanText(raw.Director.String, raw.Director.Valid)
		rec.Cast = cleanText(raw.Cast.String, raw.Cast.Valid)
		rec.Certificate = fillText(raw.Certificate.String, raw.Certificate.Valid)
		if len(extras) > 0 {
			rec.Extra = make(map[string]string, len(extras))
			for _, c := range extras {
				v := raw.Extra[c]
				rec.Extra[c] = fillText(v, v != "")
			}
		}
	}

	present := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		present[c] = true
	}

	// Two passes per numeric column: coerce everything, then fill gaps with
	// the median of the coerced values.
	for _, col := range numericColumns {
		if !present[col] {
			continue
		}
		values := make([]float64, len(records))
		ok := make([]bool, len(records))
		var observed []float64
		for i, raw := range table.Records {
			f := raw.Field(col)
			values[i], ok[i] = parseNumber(f.String, f.Valid)
			if ok[i] {
				observed = append(observed, values[i])
			}
		}
		med, has := median(observed)
		if !has {
			present[col] = false
			stats.DroppedColumns = append(stats.DroppedColumns, col)
			log.Warn().Str("column", col).Msg("numeric column has no parseable values, dropping")
			continue
		}
		for i := range records {
			if !ok[i] {
				values[i] = med
				stats.Imputed[col]++
			}
			setNumeric(&records[i], col, values[i])
		}
	}

	hasYear := b.deriveYear(table, records, &stats)
	present[domain.ColYear] = hasYear
	if !hasYear && table.Has(domain.ColYear) {
		stats.DroppedColumns = append(stats.DroppedColumns, domain.ColYear)
	}

	encoders := make(map[string]*LabelEncoder)
	if present[domain.ColGenre] {
		genres := make([]string, len(records))
		for i := range records {
			genres[i] = records[i].Genre
		}
		enc := FitLabelEncoder(genres)
		encoders[domain.ColGenre] = enc
		for i := range records {
			records[i].GenreEncoded = enc.Transform(records[i].Genre)
			records[i].GenreList = genreList(records[i].Genre)
			records[i].GenreCount = strings.Count(records[i].Genre, ",") + 1
		}
	}
	if present[domain.ColDirector] {
		directors := make([]string, len(records))
		for i := range records {
			directors[i] = records[i].Director
		}
		enc := FitLabelEncoder(directors)
		encoders[domain.ColDirector] = enc
		for i := range records {
			records[i].DirectorEncoded = enc.Transform(records[i].Director)
		}
	}
	for i := range records {
		if hasYear {
			records[i].Decade = decade(records[i].Year)
		}
		if present[domain.ColRating] {
			records[i].RatingCategory = ratingCategory(records[i].Rating)
		}
	}

	columns := columnOrder(table, present)

	deduped := dedup(records, columns)
	stats.DuplicatesRemoved = len(records) - len(deduped)
	stats.Rows = len(deduped)

	scaler := fitScaler(deduped, present, hasYear)

	docs := make([]domain.CorpusDocument, len(deduped))
	for i := range deduped {
		docs[i] = Render(i, deduped[i], columns)
	}

	log.Info().
		Int("raw_rows", stats.RawRows).
		Int("rows", stats.Rows).
		Int("duplicates_removed", stats.DuplicatesRemoved).
		Msg("corpus built")

	return &Result{
		Columns:   columns,
		Records:   deduped,
		Documents: docs,
		Encoders:  encoders,
		Scaler:    scaler,
		Stats:     stats,
	}, nil
}

// deriveYear fills Year from the raw title, then the year column, then the
// median of the years found. It reports whether any year was available.
func (b *Builder) deriveYear(table domain.RawTable, records []domain.CleanedRecord, stats *Stats) bool {
	ok := make([]bool, len(records))
	var observed []float64
	for i, raw := range table.Records {
		y, found := titleYear(raw.Title.String, raw.Title.Valid)
		if !found {
			y, found = columnYear(raw.Year.String, raw.Year.Valid)
		}
		if found {
			records[i].Year = y
			ok[i] = true
			observed = append(observed, y)
		}
	}
	med, has := median(observed)
	if !has {
		return false
	}
	for i := range records {
		if !ok[i] {
			records[i].Year = med
			stats.Imputed[domain.ColYear]++
		}
	}
	return true
}

func setNumeric(rec *domain.CleanedRecord, col string, v float64) {
	switch col {
	case domain.ColRating:
		rec.Rating = v
	case domain.ColVotes:
		rec.Votes = v
	case domain.ColRuntime:
		rec.Runtime = v
	}
}

// columnOrder lists the cleaned table columns: known source columns in fixed
// order, extra source columns in file order, then derived columns.
func columnOrder(table domain.RawTable, present map[string]bool) []string {
	var cols []string
	for _, c := range baseColumns {
		if present[c] {
			cols = append(cols, c)
		}
	}
	cols = append(cols, extraColumns(table)...)
	if present[domain.ColGenre] {
		cols = append(cols, domain.ColGenreEncoded)
	}
	if present[domain.ColDirector] {
		cols = append(cols, domain.ColDirectorEncoded)
	}
	if present[domain.ColGenre] {
		cols = append(cols, domain.ColGenreList, domain.ColGenreCount)
	}
	if present[domain.ColYear] {
		cols = append(cols, domain.ColDecade)
	}
	if present[domain.ColRating] {
		cols = append(cols, domain.ColRatingCategory)
	}
	return cols
}

// extraColumns returns source columns outside the known schema, in file order.
func extraColumns(table domain.RawTable) []string {
	known := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		known[c] = true
	}
	var out []string
	for _, c := range table.Columns {
		if !known[c] && !isDerived(c) {
			out = append(out, c)
		}
	}
	return out
}

func isDerived(c string) bool {
	switch c {
	case domain.ColGenreEncoded, domain.ColDirectorEncoded, domain.ColGenreList,
		domain.ColGenreCount, domain.ColDecade, domain.ColRatingCategory:
		return true
	}
	return false
}

// dedup drops rows whose values match an earlier row on every column except
// the multi-valued genre list. Order is preserved.
func dedup(records []domain.CleanedRecord, columns []string) []domain.CleanedRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.CleanedRecord, 0, len(records))
	var sb strings.Builder
	for _, rec := range records {
		sb.Reset()
		for _, c := range columns {
			if c == domain.ColGenreList {
				continue
			}
			sb.WriteString(rec.Value(c))
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func fitScaler(records []domain.CleanedRecord, present map[string]bool, hasYear bool) *StandardScaler {
	var cols []string
	for _, c := range numericColumns {
		if present[c] {
			cols = append(cols, c)
		}
	}
	if hasYear {
		cols = append(cols, domain.ColYear)
	}
	rows := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(cols))
		for j, c := range cols {
			switch c {
			case domain.ColRating:
				row[j] = rec.Rating
			case domain.ColVotes:
				row[j] = rec.Votes
			case domain.ColRuntime:
				row[j] = rec.Runtime
			case domain.ColYear:
				row[j] = rec.Year
			}
		}
		rows[i] = row
	}
	return FitStandardScaler(cols, rows)
}

// Render flattens a cleaned record into a corpus document. Empty values are
// skipped; the output depends only on the record and the column order.
func Render(id int, rec domain.CleanedRecord, columns []string) domain.CorpusDocument {
	fields := make(map[string]string, len(columns))
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		v := strings.TrimSpace(rec.Value(c))
		if v == "" {
			continue
		}
		fields[c] = v
		parts = append(parts, c+": "+v)
	}
	return domain.CorpusDocument{ID: id, Text: strings.Join(parts, " "), Fields: fields}
}
