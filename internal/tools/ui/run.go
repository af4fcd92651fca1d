package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type tickMsg struct{}

type doneMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	frame   int
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

func tick() tea.Cmd {
	return tea.Tick(90*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
		}
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if !m.done {
		return fmt.Sprintf("%s %s\n", spinnerFrames[m.frame], titleStyle.Render(m.title))
	}
	return Render(m.title, m.details, m.err)
}

// Render formats a finished task the same way Run prints it.
func Render(title string, details []string, err error) string {
	var b strings.Builder
	if err != nil {
		b.WriteString(failStyle.Render("✗ " + title))
	} else {
		b.WriteString(okStyle.Render("✓ " + title))
	}
	b.WriteString("\n")
	for _, d := range details {
		b.WriteString(detailStyle.Render(d))
		b.WriteString("\n")
	}
	if err != nil {
		b.WriteString(detailStyle.Render(failStyle.Render(err.Error())))
		b.WriteString("\n")
	}
	return b.String()
}

// Run shows a spinner while fn runs and prints its details when it ends.
// Ctrl-C cancels the context handed to fn.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(model{title: title, cancel: cancel})
	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run ui: %w", err)
	}
	m := final.(model)
	return m.details, m.err
}
