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

	"ragqa/internal/domain"
)

// QueryPort is the TUI-facing subset of the RAG service.
type QueryPort interface {
	Query(ctx context.Context, question string, k int) ([]domain.Document, error)
}

type resultsMsg struct {
	query string
	docs  []domain.Document
	err   error
}

// Model is the Bubble Tea model for the question prompt.
type Model struct {
	service  QueryPort
	topK     int
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	results  []domain.Document
	header   string
	status   string
	cursor   int
	ready    bool
	busy     bool
	query    string
}

// New creates a model. header is shown under the title, e.g. the active backend.
func New(service QueryPort, topK int, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	if topK <= 0 {
		topK = 4
	}
	return Model{
		service:  service,
		topK:     topK,
		timeout:  time.Minute,
		input:    ti,
		viewport: viewport.New(0, 0),
		header:   header,
		status:   "Ready. Up/Down switch results, Ctrl+C quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		docs, err := m.service.Query(ctx, q, m.topK)
		return resultsMsg{query: q, docs: docs, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		rw, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// title, header, status and one spacer
		vh := msg.Height - (3 + qh + 1)
		m.viewport.Width = max(0, msg.Width-rw)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case resultsMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.docs), msg.query)
			m.results = msg.docs
			m.query = msg.query
		}
		m.cursor = 0
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Searching..."
				return m, m.search(q)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("Study Search")
	header := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return title + "\n" + header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	d := m.results[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "Result %d/%d\n", m.cursor+1, len(m.results))
	b.WriteString(titleStyle.Render(d.Metadata.Title))
	b.WriteString("\n")
	var meta []string
	for _, v := range []string{d.Metadata.Identifier, d.Metadata.Authors, d.Metadata.Date, d.Metadata.Link} {
		if v != "" {
			meta = append(meta, v)
		}
	}
	if len(meta) > 0 {
		b.WriteString(metaStyle.Render(strings.Join(meta, " | ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if d.Content == "" {
		b.WriteString(metaStyle.Render("(excerpt not stored in the index)"))
	} else {
		b.WriteString(highlightBestSentence(d.Content, m.query))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// bestSentence returns the index of the sentence sharing the most distinct words with query.
func bestSentence(sentences []string, query string) int {
	q := toTokenSet(query)
	best, bestScore := 0, -1
	for i, s := range sentences {
		score := 0
		for t := range toTokenSet(s) {
			if _, ok := q[t]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func highlightBestSentence(text, query string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 || strings.TrimSpace(query) == "" {
		return strings.Join(sentences, " ")
	}
	i := bestSentence(sentences, query)
	sentences[i] = highlightStyle.Render(sentences[i])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
