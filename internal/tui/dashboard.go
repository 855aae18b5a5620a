// Package tui renders a live dashboard over the coordination state.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opsforge/foreman/internal/health"
	"github.com/opsforge/foreman/pkg/models"
)

// refreshInterval is how often the dashboard re-reads the committed snapshot.
const refreshInterval = time.Second

// Snapshotter provides the last committed coordination state.
type Snapshotter interface {
	Read() (*models.CoordinationState, error)
}

// HealthView provides the supervisor's per-agent judgments.
type HealthView interface {
	Statuses() map[string]health.Health
}

// tickMsg drives the periodic refresh.
type tickMsg time.Time

// Dashboard is the bubbletea model for the live view.
type Dashboard struct {
	store   Snapshotter
	healthv HealthView

	tasks   table.Model
	spin    spinner.Model
	state   *models.CoordinationState
	readErr error
	width   int

	headerStyle lipgloss.Style
	labelStyle  lipgloss.Style
	okStyle     lipgloss.Style
	warnStyle   lipgloss.Style
	badStyle    lipgloss.Style
}

// NewDashboard creates a dashboard reading from the given store. healthv may
// be nil when no supervisor is running.
func NewDashboard(store Snapshotter, healthv HealthView) *Dashboard {
	columns := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Pri", Width: 4},
		{Title: "Status", Width: 12},
		{Title: "Title", Width: 36},
		{Title: "Assigned", Width: 12},
		{Title: "Tags", Width: 20},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Dashboard{
		store:   store,
		healthv: healthv,
		tasks:   t,
		spin:    sp,
		width:   100,

		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		badStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
	}
}

// Init starts the spinner and the refresh tick.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.spin.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles refresh ticks, spinner frames, and key input.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return d, tea.Quit
		}
	case tea.WindowSizeMsg:
		d.width = msg.Width
	case tickMsg:
		d.state, d.readErr = d.store.Read()
		d.refreshRows()
		return d, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spin, cmd = d.spin.Update(msg)
		return d, cmd
	}

	var cmd tea.Cmd
	d.tasks, cmd = d.tasks.Update(msg)
	return d, cmd
}

// refreshRows rebuilds the task table from the current snapshot, keeping the
// registry's priority/FIFO ordering.
func (d *Dashboard) refreshRows() {
	if d.state == nil {
		return
	}

	tasks := make([]*models.Task, 0, len(d.state.Tasks))
	for _, t := range d.state.Tasks {
		tasks = append(tasks, t)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{
			shortID(t.ID),
			fmt.Sprintf("%d", t.Priority),
			string(t.Status),
			truncate(t.Title, 36),
			shortID(t.AssignedTo),
			truncate(strings.Join(t.Tags, ","), 20),
		})
	}
	d.tasks.SetRows(rows)
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var b strings.Builder

	b.WriteString(d.headerStyle.Render("FOREMAN"))
	b.WriteString("  ")
	b.WriteString(d.spin.View())
	if d.state != nil {
		b.WriteString(d.labelStyle.Render(fmt.Sprintf(
			"  state v%d · %d tasks · %d agents · updated %s",
			d.state.Version, len(d.state.Tasks), len(d.state.Agents),
			d.state.LastUpdated.Local().Format("15:04:05"),
		)))
	}
	b.WriteString("\n\n")

	if d.readErr != nil {
		b.WriteString(d.badStyle.Render(fmt.Sprintf("state read error: %v", d.readErr)))
		b.WriteString("\n\n")
	}

	b.WriteString(d.renderAgents())
	b.WriteString("\n")
	b.WriteString(d.tasks.View())
	b.WriteString("\n")
	b.WriteString(d.labelStyle.Render("q to quit"))
	return b.String()
}

// renderAgents renders one line per agent with heartbeat age and health.
func (d *Dashboard) renderAgents() string {
	if d.state == nil || len(d.state.Agents) == 0 {
		return d.labelStyle.Render("no agents yet") + "\n"
	}

	var healths map[string]health.Health
	if d.healthv != nil {
		healths = d.healthv.Statuses()
	}

	ids := make([]string, 0, len(d.state.Agents))
	for id := range d.state.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		a := d.state.Agents[id]
		age := time.Since(a.LastHeartbeat).Round(time.Second)

		line := fmt.Sprintf("%-14s %-10s %-9s beat %s ago  done %d  failed %d",
			shortID(id), a.Role, a.State, age,
			a.Metrics.Completed, a.Metrics.Failed)

		style := d.okStyle
		switch healths[id] {
		case health.Suspect, health.Recovering:
			style = d.warnStyle
		case health.Failed:
			style = d.badStyle
		default:
			if a.State == models.AgentStateError || a.State == models.AgentStateOffline {
				style = d.warnStyle
			}
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// shortID trims a uuid down to its first segment for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
