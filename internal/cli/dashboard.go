package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/reportbot/reportbot/pkg/models"
	"github.com/spf13/cobra"
)

// Dashboard panel indices.
const (
	panelArchive = iota
	panelDetail
	panelMetrics
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	records []models.AggregationRecord
	cursor  int
	metrics *metricsSnapshot

	// State.
	loading bool
	err     error
}

type metricsSnapshot struct {
	windowsOpened         int
	contributionsAccepted int
	rejections            int
	cyclesCompleted       int
	degradedSummaries     int
	eventCount            int
}

// dashboardLoadedMsg carries loaded data back to the model.
type dashboardLoadedMsg struct {
	records []models.AggregationRecord
	metrics *metricsSnapshot
	err     error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Bold(true)
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelArchive,
		loading:     true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadDashboardData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.records)-1 {
				m.cursor++
			}
			return m, nil
		case "r":
			m.loading = true
			return m, loadDashboardData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dashboardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.records = msg.records
		m.metrics = msg.metrics
		if m.cursor >= len(m.records) {
			m.cursor = 0
		}
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Daily Report Summaries ")
	help := helpStyle.Render("tab: switch panel | up/down: select cycle | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	archivePanel := m.renderArchivePanel()
	detailPanel := m.renderDetailPanel()
	metricsPanel := m.renderMetricsPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		archivePanel = m.applyPanelStyle(panelArchive, archivePanel, colWidth-4)
		detailPanel = m.applyPanelStyle(panelDetail, detailPanel, colWidth-4)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, archivePanel, detailPanel, metricsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		archivePanel = m.applyPanelStyle(panelArchive, archivePanel, panelWidth)
		detailPanel = m.applyPanelStyle(panelDetail, detailPanel, panelWidth)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, archivePanel, detailPanel, metricsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderArchivePanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Cycles"))
	b.WriteString("\n")

	if len(m.records) == 0 {
		b.WriteString("  No summaries available yet.")
		return b.String()
	}

	for i, r := range m.records {
		line := fmt.Sprintf("  %s  %d contribution(s)", r.Date, r.TotalContributions)
		if i == m.cursor {
			line = selectedStyle.Render("> " + strings.TrimLeft(line, " "))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

func (m dashboardModel) renderDetailPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Master Report"))
	b.WriteString("\n")

	if m.cursor >= len(m.records) {
		b.WriteString("  Nothing selected.")
		return b.String()
	}

	r := m.records[m.cursor]
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %s · created %s", r.Date, r.CreatedAt.Format("15:04 UTC"))))
	b.WriteString("\n\n")

	preview := r.MasterSummaryText
	if len(preview) > 600 {
		preview = preview[:600] + "..."
	}
	b.WriteString(preview)
	b.WriteString("\n")

	for _, s := range r.PerChannel {
		label := fmt.Sprintf("\n  %s (%d)", s.SubteamLabel, s.ContributionCount)
		if s.Degraded {
			label += degradedStyle.Render(" degraded")
		}
		b.WriteString(label)
	}

	return b.String()
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics (7d)"))
	b.WriteString("\n")

	if m.metrics == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	md := m.metrics
	lines := []struct {
		label string
		value int
	}{
		{"Events", md.eventCount},
		{"Windows", md.windowsOpened},
		{"Accepted", md.contributionsAccepted},
		{"Rejected", md.rejections},
		{"Cycles", md.cyclesCompleted},
		{"Degraded", md.degradedSummaries},
	}

	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", l.label, l.value))
	}

	return b.String()
}

func loadDashboardData() tea.Msg {
	var result dashboardLoadedMsg

	if Archive != nil {
		records, err := Archive.ListRecent(50, 0)
		if err != nil {
			result.err = fmt.Errorf("loading archive: %w", err)
			return result
		}
		result.records = records
	}

	if MetricsCalc != nil {
		since := time.Now().UTC().AddDate(0, 0, -7)
		metrics, err := MetricsCalc.Calculate(since)
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		rejected := 0
		for _, n := range metrics.IngestRejections {
			rejected += n
		}
		result.metrics = &metricsSnapshot{
			windowsOpened:         metrics.WindowsOpened,
			contributionsAccepted: metrics.ContributionsAccepted,
			rejections:            rejected,
			cyclesCompleted:       metrics.CyclesCompleted,
			degradedSummaries:     metrics.DegradedSummaries,
			eventCount:            metrics.EventCount,
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for archived summaries",
	Long: `Launch an interactive terminal dashboard showing archived report
cycles, the selected cycle's master report, and ingestion metrics.

Navigate between panels with Tab, select a cycle with up/down, refresh with r,
quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil {
			return fmt.Errorf("archive not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
