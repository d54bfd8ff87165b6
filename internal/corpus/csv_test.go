package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/domain"
)

func TestReadTableMapsHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.csv")
	data := "\ufeffTitle,Duration,Stars,Genre,Language\n" +
		"\"Heat (1995)\",170 min,Al Pacino,\"Crime, Drama\",English\n" +
		"Short Row,90 min\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "runtime", "cast", "genre", "language"}, table.Columns)
	require.Len(t, table.Records, 2)

	assert.Equal(t, "Crime, Drama", table.Records[0].Genre.String)
	assert.Equal(t, "English", table.Records[0].Extra["language"])
	assert.False(t, table.Records[1].Genre.Valid)
}

func TestReadTableFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadTable(filepath.Join(dir, "missing.csv"))
	assert.True(t, errors.Is(err, domain.ErrDataLoad))

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = ReadTable(empty)
	assert.True(t, errors.Is(err, domain.ErrDataLoad))

	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("title,genre\n"), 0o644))
	_, err = ReadTable(headerOnly)
	var dle *domain.DataLoadError
	require.True(t, errors.As(err, &dle))
	assert.Equal(t, headerOnly, dle.Source)
}

func TestCombinedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "combined_info.csv")
	docs := []domain.CorpusDocument{
		{ID: 0, Text: "title: alien genre: horror, sci-fi rating: 8.5"},
		{ID: 1, Text: "title: up \"quoted\" rating: 8"},
	}
	require.NoError(t, WriteCombined(path, docs))

	got, err := ReadCombined(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, docs[0].Text, got[0].Text)
	assert.Equal(t, docs[1].Text, got[1].Text)
	assert.Equal(t, "horror, sci-fi", got[0].Fields["genre"])
}

func TestParseFields(t *testing.T) {
	fields := ParseFields("title: the dark knight genre: action, crime rating: 9 empty: certificate: PG-13")
	assert.Equal(t, "the dark knight", fields["title"])
	assert.Equal(t, "action, crime", fields["genre"])
	assert.Equal(t, "9", fields["rating"])
	assert.Equal(t, "PG-13", fields["certificate"])
	_, ok := fields["empty"]
	assert.False(t, ok)

	assert.Empty(t, ParseFields("no fields here"))
}
