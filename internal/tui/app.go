package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/execlog/internal/models"
	"github.com/mpataki/execlog/internal/storage"
)

type View int

const (
	ViewCommandList View = iota
	ViewCommandDetail
)

// Backend is the subset of the runner the TUI drives.
type Backend interface {
	ListCommands(limit int) ([]*storage.Record, error)
	GetCommand(id int) (*storage.Record, error)
	Report(id int) (string, error)
	Kill(id int) error
	DeleteCommand(id int) error
}

type App struct {
	backend Backend

	view        View
	records     []*storage.Record
	selectedIdx int
	selected    *storage.Record
	report      string
	showLog     bool
	viewport    viewport.Model

	width  int
	height int
	err    error
}

func NewApp(backend Backend) *App {
	return &App{
		backend:  backend,
		view:     ViewCommandList,
		viewport: viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadCommands, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		// Title, state line and help
		a.viewport.Height = max(msg.Height-5, 1)
		return a, nil

	case commandsLoadedMsg:
		a.records = msg.records
		a.err = msg.err
		if a.selectedIdx >= len(a.records) {
			a.selectedIdx = max(len(a.records)-1, 0)
		}
		return a, nil

	case tickMsg:
		// Reload on every tick so commands started from other shells show up
		if a.view == ViewCommandList {
			return a, tea.Batch(a.loadCommands, a.tickCmd())
		}
		return a, a.tickCmd()

	case commandDetailMsg:
		a.err = msg.err
		if msg.err != nil {
			return a, nil
		}
		a.selected = msg.record
		a.report = msg.report
		a.showLog = false
		a.view = ViewCommandDetail
		a.refreshViewport()
		return a, nil

	case commandKilledMsg:
		a.err = msg.err
		return a, a.loadCommands

	case commandDeletedMsg:
		a.err = msg.err
		if a.selectedIdx >= len(a.records)-1 && a.selectedIdx > 0 {
			a.selectedIdx--
		}
		return a, a.loadCommands
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewCommandList:
		return a.handleListKey(msg)
	case ViewCommandDetail:
		return a.handleDetailKey(msg)
	}
	return a, nil
}

func (a *App) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.records)-1 {
			a.selectedIdx++
		}

	case "enter":
		if id, ok := a.selectedID(); ok {
			return a, a.loadDetail(id)
		}

	case "r":
		return a, a.loadCommands

	case "x":
		if id, ok := a.selectedID(); ok {
			return a, a.killCommand(id)
		}

	case "d":
		if id, ok := a.selectedID(); ok {
			return a, a.deleteCommand(id)
		}
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewCommandList
		a.selected = nil
		a.report = ""
		return a, a.loadCommands

	case "ctrl+c":
		return a, tea.Quit

	case "l":
		a.showLog = !a.showLog
		a.refreshViewport()
		return a, nil

	case "r":
		if a.selected != nil && a.selected.Command.ID != nil {
			return a, a.loadDetail(*a.selected.Command.ID)
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) selectedID() (int, bool) {
	if a.selectedIdx >= len(a.records) {
		return 0, false
	}
	id := a.records[a.selectedIdx].Command.ID
	if id == nil {
		return 0, false
	}
	return *id, true
}

// content is what the detail viewport shows: the markdown report, or the
// detailed log once toggled.
func (a *App) content() string {
	if a.selected == nil {
		return ""
	}
	if a.showLog {
		return a.selected.Command.DetailedLog()
	}
	return a.report
}

func (a *App) refreshViewport() {
	a.viewport.SetContent(a.content())
	a.viewport.GotoTop()
}

func (a *App) View() string {
	switch a.view {
	case ViewCommandList:
		return a.viewList()
	case ViewCommandDetail:
		return a.viewDetail()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statePending   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	stateExecuting = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	stateExecuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	stateSuccess   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	stateFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (a *App) viewList() string {
	s := titleStyle.Render("Execlog") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.records) == 0 {
		s += "No commands yet. Start one with 'execlog run'.\n"
	} else {
		s += "Recent Commands\n"
		s += "───────────────\n"

		for i, rec := range a.records {
			line := a.formatLine(rec)
			switch {
			case i == a.selectedIdx:
				line = selectedStyle.Render("▶ " + line)
			case rec.Command.CurrentState == models.StateExecuting:
				line = "  " + line
			default:
				line = "  " + dimStyle.Render(line)
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [x] kill  [d] delete  [r] refresh  [q] quit")

	return s
}

func (a *App) formatLine(rec *storage.Record) string {
	cmd := rec.Command
	id := 0
	if cmd.ID != nil {
		id = *cmd.ID
	}
	label := cmd.Label
	if label == "" {
		label = cmd.Executable
	}

	exit := ""
	if cmd.ExitCode != nil {
		exit = fmt.Sprintf("exit:%d", *cmd.ExitCode)
	}

	return fmt.Sprintf("#%-3d %-24s %s  %-7s  %s",
		id, truncate(label, 24), formatState(cmd.CurrentState), exit, formatAge(rec.CreatedAt))
}

func formatState(state models.ExecutionState) string {
	switch state {
	case models.StatePreExecution:
		return statePending.Render("○ pending  ")
	case models.StateExecuting:
		return stateExecuting.Render("● executing")
	case models.StateExecuted:
		return stateExecuted.Render("◐ executed ")
	case models.StateSuccess:
		return stateSuccess.Render("✓ success  ")
	case models.StateFailed:
		return stateFailed.Render("✗ failed   ")
	default:
		return state.String()
	}
}

func (a *App) viewDetail() string {
	if a.selected == nil {
		return "No command selected"
	}

	cmd := a.selected.Command
	id := 0
	if cmd.ID != nil {
		id = *cmd.ID
	}

	mode := "report"
	if a.showLog {
		mode = "log"
	}

	s := titleStyle.Render(fmt.Sprintf("Command #%d", id)) + "  " + formatState(cmd.CurrentState) + "  " + dimStyle.Render(mode) + "\n\n"
	s += a.viewport.View() + "\n"
	s += helpStyle.Render("[↑/↓] scroll  [l] toggle log  [r] refresh  [esc] back")

	return s
}

// Messages

type commandsLoadedMsg struct {
	records []*storage.Record
	err     error
}

type commandDetailMsg struct {
	record *storage.Record
	report string
	err    error
}

type commandKilledMsg struct {
	id  int
	err error
}

type commandDeletedMsg struct {
	id  int
	err error
}

// Commands

func (a *App) loadCommands() tea.Msg {
	records, err := a.backend.ListCommands(50)
	return commandsLoadedMsg{records: records, err: err}
}

func (a *App) loadDetail(id int) tea.Cmd {
	return func() tea.Msg {
		rec, err := a.backend.GetCommand(id)
		if err != nil {
			return commandDetailMsg{err: err}
		}

		report, err := a.backend.Report(id)
		return commandDetailMsg{record: rec, report: report, err: err}
	}
}

func (a *App) killCommand(id int) tea.Cmd {
	return func() tea.Msg {
		return commandKilledMsg{id: id, err: a.backend.Kill(id)}
	}
}

func (a *App) deleteCommand(id int) tea.Cmd {
	return func() tea.Msg {
		return commandDeletedMsg{id: id, err: a.backend.DeleteCommand(id)}
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
