package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/phasegate/internal/state"
)

// chromeHeight is the number of lines around the table: title, session
// lines, blank lines and the footer.
const chromeHeight = 8

type snapshotMsg Snapshot

type changedMsg struct{}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	valueStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	tableBorder  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusColors = map[string]lipgloss.Color{
		"PASS":             lipgloss.Color("42"),
		"rework":           lipgloss.Color("196"),
		"failed":           lipgloss.Color("196"),
		"blocked":          lipgloss.Color("196"),
		"ready_for_review": lipgloss.Color("39"),
		"ready_for_verify": lipgloss.Color("39"),
		"in_progress":      lipgloss.Color("214"),
	}
)

// Model is the bubbletea model for the session dashboard.
type Model struct {
	store   *state.Store
	changes <-chan struct{}
	table   table.Model
	snap    Snapshot
	width   int
	height  int
	loaded  bool
}

// NewModel creates a dashboard over store. changes may be nil, in which
// case the view only refreshes on the r key.
func NewModel(store *state.Store, changes <-chan struct{}) *Model {
	t := table.New(
		table.WithColumns(columns(100)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{store: store, changes: changes, table: t, width: 100, height: 24}
}

func columns(width int) []table.Column {
	title := width - 12 - 18 - 12 - 16 - 8 - 14
	if title < 16 {
		title = 16
	}
	return []table.Column{
		{Title: "Task", Width: 12},
		{Title: "Status", Width: 18},
		{Title: "Owner", Width: 12},
		{Title: "Step", Width: 16},
		{Title: "Review", Width: 8},
		{Title: "Title", Width: title},
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange())
}

func (m *Model) load() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		return snapshotMsg(LoadSnapshot(store))
	}
}

func (m *Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	changes := m.changes
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(m.width - 4))
		m.table.SetHeight(max(m.height-chromeHeight, 3))
		return m, nil
	case snapshotMsg:
		m.setSnapshot(Snapshot(msg))
		return m, nil
	case changedMsg:
		return m, tea.Batch(m.load(), m.waitForChange())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) setSnapshot(snap Snapshot) {
	m.snap = snap
	m.loaded = true
	rows := make([]table.Row, 0, len(snap.Tasks))
	for _, r := range snap.Tasks {
		title := r.Title
		if r.Problem != "" {
			title = r.Problem
		}
		rows = append(rows, table.Row{r.ID, r.Status, dash(r.Owner), dash(r.Step), dash(r.Verdict), title})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("phasegate session"))
	b.WriteString("\n\n")

	if !m.loaded {
		b.WriteString(labelStyle.Render("loading..."))
		return b.String()
	}
	if m.snap.Err != nil {
		b.WriteString(errorStyle.Render(m.snap.Err.Error()))
		b.WriteString("\n\n")
		b.WriteString(footerStyle.Render("r refresh  q quit"))
		return b.String()
	}

	st := m.snap.Session
	done, total := m.snap.Progress()
	b.WriteString(field("iteration", dash(m.snap.Iteration)))
	b.WriteString(field("phase", dash(string(st.CurrentPhase))))
	b.WriteString(field("task", dash(st.CurrentTask)))
	b.WriteString(field("progress", fmt.Sprintf("%d/%d", done, total)))
	if st.ConsecutiveFailures > 0 {
		b.WriteString("  " + warnStyle.Render(fmt.Sprintf("failures %d", st.ConsecutiveFailures)))
	}
	b.WriteString("\n")
	if len(m.snap.Problems) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d task file(s) failed to parse", len(m.snap.Problems))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(m.snap.Tasks) == 0 {
		b.WriteString(labelStyle.Render("no task records"))
	} else {
		b.WriteString(tableBorder.Render(m.table.View()))
		if row := m.table.SelectedRow(); row != nil {
			b.WriteString("\n")
			b.WriteString(statusLine(row))
		}
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(fmt.Sprintf("updated %s  r refresh  q quit", m.snap.LoadedAt.Format("15:04:05"))))
	return b.String()
}

func field(label, value string) string {
	return labelStyle.Render(label+" ") + valueStyle.Render(value) + "  "
}

func statusLine(row table.Row) string {
	status := row[1]
	style := lipgloss.NewStyle().Bold(true)
	if c, ok := statusColors[status]; ok {
		style = style.Foreground(c)
	}
	return labelStyle.Render(row[0]+" ") + style.Render(status)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run starts the dashboard for the state root of store, refreshing on file
// changes until the user quits or ctx is cancelled.
func Run(ctx context.Context, store *state.Store) error {
	w, err := NewWatcher(store.Root())
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Start(ctx); err != nil {
		return err
	}

	p := tea.NewProgram(NewModel(store, w.Changes()), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
