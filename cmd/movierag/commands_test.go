package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/config"
	"movierag/internal/recommend"
)

const moviesCSV = "title,genre,rating,runtime,description\n" +
	"Alien (1979),\"Horror, Sci-Fi\",8.5,117 min,The crew of a spaceship meets a deadly creature.\n" +
	"Heat (1995),\"Crime, Drama\",,170 min,A group of professional bank robbers.\n" +
	"Up (2009),\"Animation, Adventure\",8.3,96 min,An old man flies his house to South America.\n" +
	"Interstellar (2014),\"Adventure, Sci-Fi\",8.6,169 min,Explorers travel through a wormhole in space.\n" +
	"The Notebook (2004),\"Drama, Romance\",7.8,123 min,A young couple falls in love.\n"

const configTemplate = `data:
  source_path: %s
  output_dir: %s
embedder:
  type: hashing
generator:
  type: %s
vector_store:
  type: sqlite
  dir: %s
logging:
  level: disabled
`

// writeConfig lays out a dataset and a config using only offline providers.
func writeConfig(t *testing.T) string {
	t.Helper()
	return writeConfigWithGenerator(t, "extractive")
}

func writeConfigWithGenerator(t *testing.T, generator string) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "movies.csv")
	require.NoError(t, os.WriteFile(src, []byte(moviesCSV), 0o644))
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(configTemplate, src, filepath.Join(dir, "out"), generator, filepath.Join(dir, "vector_store"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath
}

// execute runs one CLI invocation against cfgPath and returns its stdout.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.creds = config.StaticCredentials{}
	root := newRootCmd(a)
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	require.NoError(t, a.teardown())
	return out.String(), err
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := newRootCmd(newApp())
	for _, name := range []string{"run", "ask", "batch", "genre", "rating", "similar", "status", "info", "reset", "chat"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRunCmd_BuildsThenLoads(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, cfgPath, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: completed")
	assert.Contains(t, out, "Index: built, 5 entries")
	assert.Contains(t, out, "Embedder: hashing")
	assert.Contains(t, out, "Generator: extractive")

	out, err = execute(t, cfgPath, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Index: loaded, 5 entries")

	out, err = execute(t, cfgPath, "run", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Index: rebuilt_forced, 5 entries")
}

func TestRunCmd_MissingGeneratorKeyFailsInitialization(t *testing.T) {
	cfgPath := writeConfigWithGenerator(t, "openai")

	out, err := execute(t, cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Generator error: ")
	assert.Contains(t, out, "OPENAI_API_KEY")

	out, err = execute(t, cfgPath, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommender_initialization")
	assert.Contains(t, out, "Status: failed")
	assert.Contains(t, out, "Completed stages: data_loading, vector_store_creation")
}

func TestAskCmd_PrintsRecommendations(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, cfgPath, "ask", "sci-fi", "space")
	require.NoError(t, err)
	assert.Contains(t, out, "Query: sci-fi space")
	assert.Contains(t, out, "=============")
	assert.Contains(t, out, "Similar movies:")
}

func TestAskCmd_JSON(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, cfgPath, "ask", "--json", "space adventure")
	require.NoError(t, err)

	var res recommend.RecommendationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "space adventure", res.Query)
	assert.Equal(t, "frequency", res.Model)
	assert.Len(t, res.SimilarItems, recommend.DefaultSimilarK)
}

func TestAskCmd_RequiresQuery(t *testing.T) {
	_, err := execute(t, writeConfig(t), "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestBatchCmd_AnswersInInputOrder(t *testing.T) {
	cfgPath := writeConfig(t)
	queries := filepath.Join(filepath.Dir(cfgPath), "queries.txt")
	require.NoError(t, os.WriteFile(queries, []byte("# favourites\nromantic drama\n\nspace exploration\n"), 0o644))

	out, err := execute(t, cfgPath, "batch", queries)
	require.NoError(t, err)
	first := strings.Index(out, "Query: romantic drama")
	second := strings.Index(out, "Query: space exploration")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	assert.NotContains(t, out, "favourites")
	assert.Equal(t, 2, strings.Count(out, "Query: "))
}

func TestBatchCmd_DefaultQueries(t *testing.T) {
	out, err := execute(t, writeConfig(t), "batch")
	require.NoError(t, err)
	for _, q := range defaultBatchQueries {
		assert.Contains(t, out, "Query: "+q)
	}
}

func TestBatchCmd_MissingFile(t *testing.T) {
	_, err := execute(t, writeConfig(t), "batch", "/does/not/exist.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open queries")
}

func TestGenreCmd_ListsMatchingMovies(t *testing.T) {
	out, err := execute(t, writeConfig(t), "genre", "Sci-Fi", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Sci-Fi")
	assert.NotContains(t, out, "3. ")
}

func TestRatingCmd(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, cfgPath, "rating", "8.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Interstellar")
	assert.NotContains(t, out, "Notebook")

	_, err = execute(t, cfgPath, "rating", "high")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rating")
}

func TestSimilarCmd_HonoursK(t *testing.T) {
	out, err := execute(t, writeConfig(t), "similar", "-k", "2", "wormhole")
	require.NoError(t, err)
	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "2. ")
	assert.NotContains(t, out, "3. ")
}

func TestStatusCmd_DoesNotRunPipeline(t *testing.T) {
	out, err := execute(t, writeConfig(t), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pipeline: not_started")
	assert.Contains(t, out, "Index: absent")
	assert.Contains(t, out, "Generator: extractive")
}

func TestInfoCmd_PrintsStats(t *testing.T) {
	out, err := execute(t, writeConfig(t), "info")
	require.NoError(t, err)

	var st recommend.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Initialized)
	assert.Equal(t, 5, st.Documents)
	assert.Equal(t, 5, st.Index.Entries)
	assert.Equal(t, "extractive", st.Generator)
}

func TestResetCmd_RemovesIndex(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := execute(t, cfgPath, "run")
	require.NoError(t, err)

	out, err := execute(t, cfgPath, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Index deleted")

	out, err = execute(t, cfgPath, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Index: built, 5 entries")
}

func TestReadQueries_SkipsBlankAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(path, []byte("  a  \n#b\n\nc\n"), 0o644))

	got, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "title: Up", firstLine("title: Up\ngenre: Animation"))
	assert.Equal(t, "plain", firstLine("plain"))
}
