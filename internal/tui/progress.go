// Package tui renders sync progress and the balance summary in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/ledgersync/internal/service"
)

// PhaseMsg reports that the synchronizer entered a phase.
type PhaseMsg service.Phase

// SyncDoneMsg carries the outcome of the sync.
type SyncDoneMsg struct {
	Result service.SyncResult
	Err    error
}

// SyncFunc runs one sync, reporting phases to obs.
type SyncFunc func(ctx context.Context, obs service.Observer) (service.SyncResult, error)

// ProgressModel shows a checklist of sync phases.
type ProgressModel struct {
	title     string
	cancel    context.CancelFunc
	current   service.Phase
	finished  bool
	cancelled bool
	result    service.SyncResult
	err       error
}

// NewProgressModel builds a model. cancel, when set, is called on ctrl+c.
func NewProgressModel(title string, cancel context.CancelFunc) ProgressModel {
	return ProgressModel{title: title, cancel: cancel}
}

func (m ProgressModel) Init() tea.Cmd { return nil }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.cancel != nil {
				m.cancel()
			}
			m.cancelled = true
			return m, tea.Quit
		}
	case PhaseMsg:
		m.current = service.Phase(msg)
	case SyncDoneMsg:
		m.finished = true
		m.result = msg.Result
		m.err = msg.Err
		if msg.Err == nil {
			m.current = service.PhaseDone
		}
		return m, tea.Quit
	}
	return m, nil
}

// Finished reports whether a SyncDoneMsg arrived.
func (m ProgressModel) Finished() bool { return m.finished }

// Err is the sync error, if any.
func (m ProgressModel) Err() error { return m.err }

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	failed := failedPhase(m.err)
	cur := phaseIndex(m.current)
	for i, p := range service.Phases {
		if p == service.PhaseDone {
			continue
		}
		var line string
		switch {
		case failed != "" && p == failed:
			line = errorStyle.Render("✗") + " " + string(p)
		case i < cur || m.current == service.PhaseDone:
			line = successStyle.Render("✓") + " " + string(p)
		case i == cur && !m.finished:
			line = activeStyle.Render("●") + " " + activeStyle.Render(string(p))
		default:
			line = mutedStyle.Render("·") + " " + mutedStyle.Render(string(p))
		}
		b.WriteString("  " + line + "\n")
	}

	switch {
	case m.err != nil:
		kind := service.Classify(m.err)
		b.WriteString(errorStyle.Render("sync failed: ") + m.err.Error() + "\n")
		if hint := kind.Hint(); hint != "" {
			b.WriteString(warningStyle.Render(hint) + "\n")
		}
	case m.finished:
		b.WriteString(successStyle.Render(fmt.Sprintf("synced %d transactions across %d accounts (%d pages)",
			m.result.Transactions, m.result.Accounts, m.result.Pages)) + "\n")
	case m.cancelled:
		b.WriteString(warningStyle.Render("cancelling...") + "\n")
	}
	return b.String()
}

func phaseIndex(p service.Phase) int {
	for i, q := range service.Phases {
		if q == p {
			return i
		}
	}
	return -1
}

func failedPhase(err error) service.Phase {
	var pe *service.PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}

// RunSync drives run behind a ProgressModel on out and returns the sync
// outcome. Quitting the program cancels the sync and waits for it to stop.
func RunSync(ctx context.Context, title string, out io.Writer, run SyncFunc, opts ...tea.ProgramOption) (service.SyncResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewProgressModel(title, cancel), opts...)

	done := make(chan SyncDoneMsg, 1)
	go func() {
		res, err := run(ctx, func(ph service.Phase) { p.Send(PhaseMsg(ph)) })
		msg := SyncDoneMsg{Result: res, Err: err}
		done <- msg
		p.Send(msg)
	}()

	_, progErr := p.Run()
	outcome := <-done
	if outcome.Err != nil {
		return outcome.Result, outcome.Err
	}
	if progErr != nil && !errors.Is(progErr, tea.ErrProgramKilled) {
		return outcome.Result, fmt.Errorf("progress display: %w", progErr)
	}
	return outcome.Result, nil
}
