package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/leadradar/internal/dispatch"
	"github.com/amishk599/leadradar/internal/model"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// recentResults is how many finished items the progress view lists.
const recentResults = 6

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type itemStartedMsg struct{ key string }

type itemFinishedMsg struct{ result model.Result }

type runDoneMsg struct {
	report model.RunReport
	err    error
}

type spinnerTickMsg struct{}

type progressModel struct {
	pipeline  string
	total     int
	succeeded int
	failed    int
	inFlight  int
	recent    []model.Result
	bar       progress.Model
	frame     int
	cancel    context.CancelFunc
	stopping  bool
	report    model.RunReport
	err       error
	done      bool
}

func newProgressModel(pipeline string, total int, cancel context.CancelFunc) progressModel {
	return progressModel{
		pipeline: pipeline,
		total:    total,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel:   cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.tick()
}

func (m progressModel) tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case itemStartedMsg:
		m.inFlight++
		return m, nil
	case itemFinishedMsg:
		m.inFlight = max(m.inFlight-1, 0)
		if msg.result.Succeeded() {
			m.succeeded++
		} else {
			m.failed++
		}
		m.recent = append(m.recent, msg.result)
		if len(m.recent) > recentResults {
			m.recent = m.recent[len(m.recent)-recentResults:]
		}
		return m, nil
	case runDoneMsg:
		m.report = msg.report
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinnerTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, m.tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.stopping {
				// second press: stop waiting for in-flight items
				m.done = true
				return m, tea.Quit
			}
			m.stopping = true
			m.cancel()
		}
	}
	return m, nil
}

func (m progressModel) percent() float64 {
	if m.total == 0 {
		return 1
	}
	return float64(m.succeeded+m.failed) / float64(m.total)
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	spinner := spinnerStyle.Render(spinnerFrames[m.frame])
	fmt.Fprintf(&b, "%s %s  %s  %d/%d", spinner, m.pipeline, m.bar.ViewAs(m.percent()), m.succeeded+m.failed, m.total)
	fmt.Fprintf(&b, "  %s\n", dimStyle.Render(fmt.Sprintf("(%d failed, %d in flight)", m.failed, m.inFlight)))

	for _, r := range m.recent {
		if f, ok := r.Outcome.(model.Failure); ok {
			b.WriteString(failStyle.Render("  ✗ "+r.Key) + dimStyle.Render(": "+truncate(f.Reason, 80)) + "\n")
			continue
		}
		b.WriteString(okStyle.Render("  ✓ ") + r.Key + "\n")
	}

	if m.stopping {
		b.WriteString(dimStyle.Render("  stopping, waiting for in-flight items and saving the checkpoint... (press again to force)") + "\n")
	} else {
		b.WriteString(dimStyle.Render("  q/ctrl+c stop") + "\n")
	}
	return b.String()
}

// programObserver forwards dispatcher events into a running program.
type programObserver struct {
	program *tea.Program
}

var _ dispatch.Observer = (*programObserver)(nil)

func (o *programObserver) Started(item model.WorkItem) {
	o.program.Send(itemStartedMsg{key: item.Key})
}

func (o *programObserver) Finished(r model.Result) {
	o.program.Send(itemFinishedMsg{result: r})
}

// RunFunc runs a pipeline, reporting item events to obs.
type RunFunc func(ctx context.Context, obs dispatch.Observer) (model.RunReport, error)

// RunProgress shows a live progress bar while run executes. It renders inline
// (no alt screen). Quitting cancels ctx and waits for run to return.
func RunProgress(ctx context.Context, pipeline string, total int, run RunFunc) (model.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(pipeline, total, cancel))
	obs := &programObserver{program: p}

	finished := make(chan runDoneMsg, 1)
	go func() {
		report, err := run(ctx, obs)
		msg := runDoneMsg{report: report, err: err}
		finished <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		return model.RunReport{}, fmt.Errorf("progress view: %w", err)
	}
	// The run may still be flushing after a forced quit.
	msg := <-finished
	return msg.report, msg.err
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
