package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"movierag/internal/domain"
)

// headerAliases maps alternative dataset headers onto the known columns.
var headerAliases = map[string]string{
	"name":       domain.ColTitle,
	"movie":      domain.ColTitle,
	"duration":   domain.ColRuntime,
	"stars":      domain.ColCast,
	"actors":     domain.ColCast,
	"overview":   domain.ColDescription,
	"plot":       domain.ColDescription,
	"rate":       domain.ColRating,
	"imdb_score": domain.ColRating,
}

// CombinedHeader is the single column of the corpus document export.
const CombinedHeader = "combined_info"

// ReadTable reads a CSV dataset with a header row. Short rows are padded with
// missing values; an unreadable, headerless or empty file is a DataLoadError.
func ReadTable(path string) (domain.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawTable{}, &domain.DataLoadError{Source: path, Err: err}
	}
	defer f.Close()

	table, err := readTable(f)
	if err != nil {
		return domain.RawTable{}, &domain.DataLoadError{Source: path, Err: err}
	}
	return table, nil
}

func readTable(r io.Reader) (domain.RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.RawTable{}, errors.New("empty file")
		}
		return domain.RawTable{}, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = canonicalColumn(h, i)
	}

	var records []domain.RawRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		var rec domain.RawRecord
		for i, col := range columns {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			rec.SetField(col, v)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return domain.RawTable{}, errors.New("no rows")
	}
	return domain.RawTable{Columns: columns, Records: records}, nil
}

func canonicalColumn(h string, pos int) string {
	c := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	c = strings.ReplaceAll(c, " ", "_")
	if c == "" {
		return fmt.Sprintf("column_%d", pos)
	}
	if alias, ok := headerAliases[c]; ok {
		return alias
	}
	return c
}

// WriteCleaned writes the cleaned table, one row per record, all columns.
func WriteCleaned(path string, res *Result) error {
	rows := make([][]string, len(res.Records))
	for i, rec := range res.Records {
		row := make([]string, len(res.Columns))
		for j, c := range res.Columns {
			row[j] = rec.Value(c)
		}
		rows[i] = row
	}
	return writeCSV(path, res.Columns, rows)
}

// WriteCombined writes the corpus document export: one UTF-8 text per row
// under a single header.
func WriteCombined(path string, docs []domain.CorpusDocument) error {
	rows := make([][]string, len(docs))
	for i, d := range docs {
		rows[i] = []string{d.Text}
	}
	return writeCSV(path, []string{CombinedHeader}, rows)
}

// ReadCombined reads a corpus document export back. Document ids are row
// ordinals.
func ReadCombined(path string) ([]domain.CorpusDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 1 || strings.TrimPrefix(header[0], "\ufeff") != CombinedHeader {
		return nil, fmt.Errorf("unexpected header %v", header)
	}
	var docs []domain.CorpusDocument
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.CorpusDocument{ID: len(docs), Text: row[0], Fields: ParseFields(row[0])})
	}
	return docs, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ParseFields recovers "field: value" pairs from flattened document text.
// Whitespace-separated tokens ending in ':' start a new field; the following
// tokens up to the next field name form its value.
func ParseFields(text string) map[string]string {
	fields := make(map[string]string)
	var key string
	var value []string
	flush := func() {
		if key != "" && len(value) > 0 {
			fields[key] = strings.Join(value, " ")
		}
	}
	for _, tok := range strings.Fields(text) {
		if strings.HasSuffix(tok, ":") && len(tok) > 1 {
			flush()
			key = strings.TrimSuffix(tok, ":")
			value = value[:0]
			continue
		}
		if key != "" {
			value = append(value, tok)
		}
	}
	flush()
	return fields
}
