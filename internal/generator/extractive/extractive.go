// Package extractive implements an offline generator. It ranks the retrieved
// movie blocks by word frequency and query overlap and lists the best ones.
package extractive

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"movierag/internal/corpus"
	"movierag/internal/domain"
)

var _ domain.Generator = (*Generator)(nil)

// DefaultMaxItems is the number of movies listed when none is configured.
const DefaultMaxItems = 5

// queryWeight is added to a block's score per query term it contains.
const queryWeight = 1.0

var blockSeparator = regexp.MustCompile(`\n\s*\n`)

// Generator ranks context blocks by token frequency (stopwords filtered).
type Generator struct {
	maxItems     int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates an extractive generator listing at most maxItems movies.
func New(maxItems int) *Generator {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Generator{
		maxItems:     maxItems,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (g *Generator) Name() string  { return "extractive" }
func (g *Generator) Model() string { return "frequency" }

type block struct {
	fields map[string]string
	tokens []string
}

// Generate returns an empty answer when the context holds no movies.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blocks := g.blocks(req.Context)
	if len(blocks) == 0 {
		return "", nil
	}

	// word frequencies over the whole context
	freq := map[string]float64{}
	for _, b := range blocks {
		for _, tok := range b.tokens {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	query := map[string]struct{}{}
	for _, tok := range g.tokens(req.Query) {
		query[tok] = struct{}{}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(blocks))
	for i, b := range blocks {
		s := 0.0
		matched := map[string]struct{}{}
		for _, tok := range b.tokens {
			s += freq[tok]
			if _, ok := query[tok]; ok {
				matched[tok] = struct{}{}
			}
		}
		// normalise by length to avoid bias towards long descriptions
		if l := float64(len(b.tokens)); l > 0 {
			s /= math.Sqrt(l)
		}
		s += queryWeight * float64(len(matched))
		scores[i] = pair{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(g.maxItems, len(scores))
	var out strings.Builder
	fmt.Fprintf(&out, "Movies from the catalogue matching %q:\n", strings.TrimSpace(req.Query))
	for rank, p := range scores[:n] {
		writeItem(&out, rank+1, blocks[p.idx].fields)
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

func writeItem(out *strings.Builder, rank int, f map[string]string) {
	title := f[domain.ColTitle]
	if title == "" {
		title = "untitled"
	}
	if y := f[domain.ColYear]; y != "" && y != domain.Unknown {
		title = fmt.Sprintf("%s (%s)", title, y)
	}
	fmt.Fprintf(out, "\n%d. %s\n", rank, title)

	var facts []string
	for _, col := range []string{domain.ColGenre, domain.ColRating, domain.ColRuntime, domain.ColCertificate} {
		if v := f[col]; v != "" && v != domain.Unknown {
			facts = append(facts, fmt.Sprintf("%s: %s", col, v))
		}
	}
	if len(facts) > 0 {
		fmt.Fprintf(out, "   %s\n", strings.Join(facts, " | "))
	}
	if d := f[domain.ColDescription]; d != "" && d != domain.Unknown {
		fmt.Fprintf(out, "   %s\n", d)
	}
}

// blocks splits the context into one block per movie, dropping repeated
// titles that come from several chunks of the same document.
func (g *Generator) blocks(context string) []block {
	var out []block
	seen := map[string]struct{}{}
	for _, raw := range blockSeparator.Split(context, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		fields := corpus.ParseFields(raw)
		if title := fields[domain.ColTitle]; title != "" {
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var tokens []string
		for _, k := range keys {
			tokens = append(tokens, g.tokens(fields[k])...)
		}
		if len(fields) == 0 {
			tokens = g.tokens(raw)
		}
		out = append(out, block{fields: fields, tokens: tokens})
	}
	return out
}

func (g *Generator) tokens(text string) []string {
	raw := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, ok := g.stopwords[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"movie", "movies", "film", "films", "unknown", "recommend", "like", "want", "some", "me",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
