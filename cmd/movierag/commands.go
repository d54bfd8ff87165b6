package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"movierag/internal/pipeline"
	"movierag/internal/recommend"
	"movierag/internal/tui"
)

// defaultBatchQueries are answered by batch when no query file is given.
var defaultBatchQueries = []string{
	"I like action and adventure movies",
	"Show me some romantic comedy movies",
	"Recommend me sci-fi movies with high ratings",
	"I want to watch something similar to Christopher Nolan films",
}

const defaultLimit = 5

func newRunCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: load data, build or load the index, initialize the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.orch.Run(cmd.Context(), force)
			printRunResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild the index even when a valid one exists")
	return cmd
}

func printRunResult(w io.Writer, res pipeline.Result) {
	fmt.Fprintf(w, "Status: %s\n", res.Status)
	fmt.Fprintf(w, "Completed stages: %s\n", strings.Join(res.CompletedStages, ", "))
	if c := res.Stats.Corpus; c != nil {
		fmt.Fprintf(w, "Movies: %d\n", c.Rows)
	}
	if ix := res.Stats.Index; ix != nil {
		fmt.Fprintf(w, "Index: %s, %d entries in %s\n", ix.Outcome, ix.Entries, ix.Duration.Round(time.Millisecond))
	}
	p := res.Stats.Providers
	fmt.Fprintf(w, "Embedder: %s\n", p.Embedder)
	fmt.Fprintf(w, "Generator: %s\n", p.Generator)
	if p.FallbackReason != "" {
		fmt.Fprintf(w, "Fallback: %s\n", p.FallbackReason)
	}
	if p.GeneratorError != "" {
		fmt.Fprintf(w, "Generator error: %s\n", p.GeneratorError)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "Error: %s\n", e)
	}
}

func newAskCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <query...>",
		Short: "Ask for movie recommendations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			res, err := a.orch.GetRecommendations(cmd.Context(), query)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, res)
			}
			printRecommendation(w, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printRecommendation(w io.Writer, res *recommend.RecommendationResult) {
	fmt.Fprintf(w, "Query: %s\n", res.Query)
	fmt.Fprintln(w, res.Recommendations)
	if len(res.SimilarItems) == 0 {
		return
	}
	fmt.Fprintln(w, "Similar movies:")
	for i, it := range res.SimilarItems {
		fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, it.Score, firstLine(it.ContentSnippet))
	}
}

func newBatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "batch [file]",
		Short: "Answer one query per line of file, or a built-in query set",
		Long: `batch answers every query and prints the answers in input order. Blank
lines and lines starting with # are skipped. A failing query prints an
error line and does not stop the batch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := defaultBatchQueries
			if len(args) == 1 {
				var err error
				if queries, err = readQueries(args[0]); err != nil {
					return err
				}
			}
			answers := a.orch.AnswerMany(cmd.Context(), queries)
			w := cmd.OutOrStdout()
			for _, q := range queries {
				fmt.Fprintf(w, "Query: %s\n%s\n\n", q, answers[q].Text())
			}
			return nil
		},
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return out, nil
}

func newGenreCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "genre <genre>",
		Short: "List highly rated movies of a genre",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine(cmd)
			if err != nil {
				return err
			}
			movies, err := engine.ByGenre(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printMovies(cmd.OutOrStdout(), movies)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "maximum number of movies")
	return cmd
}

func newRatingCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rating <min>",
		Short: "List movies rated at least min",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minRating, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid rating %q: %w", args[0], err)
			}
			engine, err := a.engine(cmd)
			if err != nil {
				return err
			}
			movies, err := engine.ByRating(cmd.Context(), minRating, limit)
			if err != nil {
				return err
			}
			printMovies(cmd.OutOrStdout(), movies)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "maximum number of movies")
	return cmd
}

func printMovies(w io.Writer, movies []recommend.Movie) {
	if len(movies) == 0 {
		fmt.Fprintln(w, "No movies found")
		return
	}
	for i, m := range movies {
		fmt.Fprintf(w, "%d. %s | %s | %s | %s | %s (%.3f)\n",
			i+1, m.Title, m.Genre, m.Rating, m.Runtime, m.Certificate, m.SimilarityScore)
	}
}

func newSimilarCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "similar <query...>",
		Short: "Show the movies closest to a query without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine(cmd)
			if err != nil {
				return err
			}
			items, err := engine.SimilarItems(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(w, "No movies found")
			}
			for i, it := range items {
				fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, it.Score, firstLine(it.ContentSnippet))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", recommend.DefaultSimilarK, "number of movies")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline, provider and index status without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			st := a.orch.Status()
			p := a.orch.Providers()
			info := a.orch.Index().Info()
			fmt.Fprintf(w, "Config: %s\n", a.cfgPath)
			fmt.Fprintf(w, "Pipeline: %s\n", st.Status)
			fmt.Fprintf(w, "Embedder: %s (configured %s)\n", p.Embedder, p.EmbedderConfigured)
			fmt.Fprintf(w, "Generator: %s\n", p.Generator)
			if p.FallbackReason != "" {
				fmt.Fprintf(w, "Fallback: %s\n", p.FallbackReason)
			}
			if p.GeneratorError != "" {
				fmt.Fprintf(w, "Generator error: %s\n", p.GeneratorError)
			}
			fmt.Fprintf(w, "Index: %s, %d entries, dimension %d, dir %s\n", info.State, info.Entries, info.Dimension, info.Dir)
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Initialize the engine and print its statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), engine.Stats())
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.orch.Index().Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Index deleted: %s\n", a.cfg.VectorStore.Dir)
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive recommendation chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine(cmd)
			if err != nil {
				return err
			}
			st := engine.Stats()
			summary := fmt.Sprintf("%d movies, %d index entries, generator %s/%s",
				st.Documents, st.Index.Entries, st.Generator, st.Model)
			_, err = tea.NewProgram(tui.New(a.orch, summary), tea.WithAltScreen()).Run()
			return err
		},
	}
}

// engine runs the pipeline if needed and returns the initialized engine.
func (a *app) engine(cmd *cobra.Command) (*recommend.Engine, error) {
	if _, err := a.orch.EnsureReady(cmd.Context()); err != nil {
		return nil, err
	}
	return a.orch.Engine(), nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
