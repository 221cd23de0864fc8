package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type taskFunc func(ctx context.Context) ([]string, error)

type tickMsg struct{}

type taskDoneMsg struct {
	details []string
	err     error
}

type taskModel struct {
	ctx     context.Context
	title   string
	fn      taskFunc
	frame   int
	done    bool
	details []string
	err     error
}

func (m taskModel) Init() tea.Cmd {
	return tea.Batch(tick(), func() tea.Msg {
		details, err := m.fn(m.ctx)
		return taskDoneMsg{details: details, err: err}
	})
}

func (m taskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskDoneMsg:
		m.done, m.details, m.err = true, msg.details, msg.err
		return m, tea.Quit
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	}
	return m, nil
}

func (m taskModel) View() string {
	if m.done {
		return ""
	}
	return spinnerStyle.Render(spinnerFrames[m.frame]) + " " + m.title + "\n"
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// runTask executes fn behind a spinner, or directly in CI mode, and prints
// the outcome.
func runTask(ctx context.Context, out io.Writer, ci bool, title string, fn taskFunc) error {
	var (
		details []string
		err     error
	)
	if ci {
		details, err = fn(ctx)
	} else {
		final, runErr := tea.NewProgram(
			taskModel{ctx: ctx, title: title, fn: fn},
			tea.WithContext(ctx),
			tea.WithInput(nil),
			tea.WithOutput(out),
		).Run()
		if runErr != nil {
			return fmt.Errorf("%s: %w", title, runErr)
		}
		m := final.(taskModel)
		details, err = m.details, m.err
	}
	printResult(out, ci, title, details, err)
	return err
}

func printResult(out io.Writer, ci bool, title string, details []string, err error) {
	if ci {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		fmt.Fprintf(out, "task=%q status=%s\n", title, status)
		for _, d := range details {
			fmt.Fprintf(out, "  %s\n", d)
		}
		if err != nil {
			fmt.Fprintf(out, "  error=%q\n", err.Error())
		}
		return
	}
	mark := okStyle.Render("✓")
	if err != nil {
		mark = failStyle.Render("✗")
	}
	fmt.Fprintln(out, mark+" "+titleStyle.Render(title))
	for _, d := range details {
		fmt.Fprintln(out, detailStyle.Render(d))
	}
	if err != nil {
		fmt.Fprintln(out, detailStyle.Render(failStyle.Render("error: ")+err.Error()))
	}
}

func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", w-lipgloss.Width(s))
	}
	var b strings.Builder
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = headerStyle.Render(pad(h, widths[i]))
	}
	b.WriteString(strings.Join(cells, "  ") + "\n")
	for _, row := range rows {
		for i, cell := range row {
			cells[i] = pad(cell, widths[i])
		}
		b.WriteString(strings.Join(cells, "  ") + "\n")
	}
	return b.String()
}
