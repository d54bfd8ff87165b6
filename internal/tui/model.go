// Package tui implements the interactive recommendation chat.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"movierag/internal/recommend"
)

// RecommendPort is the TUI-facing subset of the pipeline.
type RecommendPort interface {
	GetRecommendations(ctx context.Context, query string) (*recommend.RecommendationResult, error)
}

// queryTimeout bounds a single question.
const queryTimeout = 2 * time.Minute

type answerMsg struct {
	query  string
	result *recommend.RecommendationResult
	err    error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	service   RecommendPort
	input     textinput.Model
	viewport  viewport.Model
	result    *recommend.RecommendationResult
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a chat model. summary is shown under the header.
func New(service RecommendPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What would you like to watch? Press Enter to ask"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, input: ti, viewport: vp, summary: summary, status: "Ready. Ask for a movie recommendation."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		res, err := m.service.GetRecommendations(ctx, q)
		return answerMsg{query: q, result: res, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = nil
		} else {
			m.status = fmt.Sprintf("Recommendations for %q (%s)", msg.query, msg.result.Model)
			m.result = msg.result
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			switch strings.ToLower(q) {
			case "quit", "exit", "q":
				return m, tea.Quit
			}
			m.busy = true
			m.status = fmt.Sprintf("Thinking about %q...", q)
			m.input.SetValue("")
			return m, m.ask(q)
		case "down":
			if n := m.similarCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := m.similarCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) similarCount() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.SimilarItems)
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Movie Recommendations")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.result == nil {
		return "No recommendations yet."
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.result.Recommendations))
	if n := len(m.result.SimilarItems); n > 0 {
		fmt.Fprintf(&b, "\n\nSimilar movies (%d/%d, up/down to browse)\n", m.cursor+1, n)
		item := m.result.SimilarItems[m.cursor]
		title := item.Metadata["title"]
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&b, "%s  score=%.3f\n", titleStyle.Render(title), item.Score)
		b.WriteString(highlightBestSentence(item.ContentSnippet, m.lastQuery))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	fieldRe        = regexp.MustCompile(`\S+: `)
)

// highlightBestSentence splits "field: value" text at field names and
// highlights the field sharing most words with the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	parts := splitFields(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(parts, "\n")
	}
	bestIdx := -1
	bestScore := 0
	for i, s := range parts {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range parts {
		if i == bestIdx {
			parts[i] = highlightStyle.Render(parts[i])
		}
	}
	return strings.Join(parts, "\n")
}

func splitFields(text string) []string {
	locs := fieldRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	var parts []string
	if head := strings.TrimSpace(text[:locs[0][0]]); head != "" {
		parts = append(parts, head)
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		parts = append(parts, strings.TrimSpace(text[loc[0]:end]))
	}
	return parts
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
