package domain

import (
	"database/sql"
	"strconv"
)

// Column names shared by the corpus builder, the flattened document text and
// the index entry metadata.
const (
	ColTitle           = "title"
	ColYear            = "year"
	ColCertificate     = "certificate"
	ColRuntime         = "runtime"
	ColGenre           = "genre"
	ColRating          = "rating"
	ColDescription     = "description"
	ColDirector        = "director"
	ColCast            = "cast"
	ColVotes           = "votes"
	ColGenreEncoded    = "genre_encoded"
	ColDirectorEncoded = "director_encoded"
	ColGenreList       = "genre_list"
	ColGenreCount      = "genre_count"
	ColDecade          = "decade"
	ColRatingCategory  = "rating_category"
)

// Unknown replaces missing or empty text values.
const Unknown = "Unknown"

// RawRecord is one row of the source dataset. Known columns are typed as
// nullable strings; anything else lands in Extra.
type RawRecord struct {
	Title       sql.NullString
	Genre       sql.NullString
	Description sql.NullString
	Director    sql.NullString
	Cast        sql.NullString
	Rating      sql.NullString
	Votes       sql.NullString
	Runtime     sql.NullString
	Certificate sql.NullString
	Year        sql.NullString
	Extra       map[string]string
}

// RawTable is a dataset as read from disk: the column header in file order and
// the rows.
type RawTable struct {
	Columns []string
	Records []RawRecord
}

// Has reports whether the source carried a column with the given name.
func (t RawTable) Has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Field returns the raw value for a column name, including extras.
func (r RawRecord) Field(col string) sql.NullString {
	switch col {
	case ColTitle:
		return r.Title
	case ColGenre:
		return r.Genre
	case ColDescription:
		return r.Description
	case ColDirector:
		return r.Director
	case ColCast:
		return r.Cast
	case ColRating:
		return r.Rating
	case ColVotes:
		return r.Votes
	case ColRuntime:
		return r.Runtime
	case ColCertificate:
		return r.Certificate
	case ColYear:
		return r.Year
	}
	if v, ok := r.Extra[col]; ok {
		return sql.NullString{String: v, Valid: v != ""}
	}
	return sql.NullString{}
}

// SetField assigns a raw value by column name. Unknown columns go to Extra.
func (r *RawRecord) SetField(col, value string) {
	v := sql.NullString{String: value, Valid: value != ""}
	switch col {
	case ColTitle:
		r.Title = v
	case ColGenre:
		r.Genre = v
	case ColDescription:
		r.Description = v
	case ColDirector:
		r.Director = v
	case ColCast:
		r.Cast = v
	case ColRating:
		r.Rating = v
	case ColVotes:
		r.Votes = v
	case ColRuntime:
		r.Runtime = v
	case ColCertificate:
		r.Certificate = v
	case ColYear:
		r.Year = v
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[col] = value
	}
}

// CleanedRecord is a normalised RawRecord with derived features. Numeric
// columns are always populated when the column exists in the source.
type CleanedRecord struct {
	Title       string
	Genre       string
	Description string
	Director    string
	Cast        string
	Certificate string

	Rating  float64
	Votes   float64
	Runtime float64
	Year    float64

	Decade          int
	GenreCount      int
	GenreList       string
	RatingCategory  string
	GenreEncoded    int
	DirectorEncoded int

	Extra map[string]string
}

// Value renders a column of the record as text. Numeric values use the
// shortest exact representation so the output is stable across runs.
func (c CleanedRecord) Value(col string) string {
	switch col {
	case ColTitle:
		return c.Title
	case ColGenre:
		return c.Genre
	case ColDescription:
		return c.Description
	case ColDirector:
		return c.Director
	case ColCast:
		return c.Cast
	case ColCertificate:
		return c.Certificate
	case ColRating:
		return FormatNumber(c.Rating)
	case ColVotes:
		return FormatNumber(c.Votes)
	case ColRuntime:
		return FormatNumber(c.Runtime)
	case ColYear:
		return FormatNumber(c.Year)
	case ColDecade:
		return strconv.Itoa(c.Decade)
	case ColGenreCount:
		return strconv.Itoa(c.GenreCount)
	case ColGenreList:
		return c.GenreList
	case ColRatingCategory:
		return c.RatingCategory
	case ColGenreEncoded:
		return strconv.Itoa(c.GenreEncoded)
	case ColDirectorEncoded:
		return strconv.Itoa(c.DirectorEncoded)
	}
	return c.Extra[col]
}

// FormatNumber formats a float without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CorpusDocument is one cleaned record flattened into "field: value" text.
// ID is the row ordinal after deduplication.
type CorpusDocument struct {
	ID     int
	Text   string
	Fields map[string]string
}
