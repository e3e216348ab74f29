package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/resolvd/internal/engine"
	api "github.com/fyrsmithlabs/resolvd/internal/http"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

func newTopCmd(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live view of engine health",
		Long: `Poll /api/v1/status and render pattern states, resolution success rate,
error rates and the most frequent patterns.

Keys: q quit, r refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			fetch := func() (*api.StatusResponse, error) {
				var resp api.StatusResponse
				if err := c.do("GET", "/api/v1/status", nil, &resp); err != nil {
					return nil, err
				}
				return &resp, nil
			}
			_, err := tea.NewProgram(newTopModel(opts.serverURL, interval, fetch), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	healthyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	sparklineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	footerKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)
)

type fetchFunc func() (*api.StatusResponse, error)

// topModel is the bubbletea model behind rsctl top.
type topModel struct {
	server   string
	interval time.Duration
	fetch    fetchFunc

	status     *api.StatusResponse
	lastUpdate time.Time
	err        error
	quitting   bool

	errorHistory   []float64
	successHistory []float64
	successBar     progress.Model
}

func newTopModel(server string, interval time.Duration, fetch fetchFunc) topModel {
	return topModel{
		server:         server,
		interval:       interval,
		fetch:          fetch,
		errorHistory:   make([]float64, 0, historySize),
		successHistory: make([]float64, 0, historySize),
		successBar: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

type tickMsg time.Time
type statusMsg struct{ status *api.StatusResponse }
type errMsg struct{ err error }

func (m topModel) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), m.poll())
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m topModel) poll() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		s, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{s}
	}
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}

	case tickMsg:
		return m, tea.Batch(tick(m.interval), m.poll())

	case statusMsg:
		m.status = msg.status
		m.lastUpdate = time.Now()
		m.err = nil
		if r := msg.status.Engine; r != nil {
			m.errorHistory = appendToHistory(m.errorHistory, float64(r.ErrorsLastHour))
			m.successHistory = appendToHistory(m.successHistory, r.OverallSuccessRate*100)
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func (m topModel) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderStatus()
}

func (m topModel) renderError() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" resolvd top ") + "\n\n")
	b.WriteString(errorStyle.Render("Cannot reach resolvd") + "\n\n")
	b.WriteString(dimStyle.Render("Server: ") + valueStyle.Render(m.server) + "\n")
	b.WriteString(dimStyle.Render("Error:  ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(footer(m.interval))
	return containerStyle.Render(b.String())
}

func (m topModel) renderStatus() string {
	var b strings.Builder

	updated := "never"
	if !m.lastUpdate.IsZero() {
		updated = m.lastUpdate.Format("15:04:05")
	}
	badge := dimStyle.Render("waiting")
	if m.status != nil {
		badge = statusBadge(m.status.Status)
	}
	b.WriteString(headerStyle.Render(" resolvd top ") + "   " + badge + "   " + dimStyle.Render(updated) + "\n")

	if m.status == nil || m.status.Engine == nil {
		b.WriteString("\n" + dimStyle.Render("no data yet") + "\n\n" + footer(m.interval))
		return containerStyle.Render(b.String())
	}
	r := m.status.Engine

	b.WriteString("\n" + sectionStyle.Render("┃ Patterns") + "\n")
	b.WriteString(labelStyle.Render("  Tracked: ") + valueStyle.Render(fmt.Sprintf("%d", r.TotalPatterns)) +
		dimStyle.Render(fmt.Sprintf("  (%d occurrences)", r.TotalOccurrences)) + "\n")
	b.WriteString(labelStyle.Render("  States:  ") + renderStates(r.ByState) + "\n")
	if r.Quarantined > 0 {
		b.WriteString(labelStyle.Render("  Quarantined: ") + errorStyle.Render(fmt.Sprintf("%d", r.Quarantined)) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Resolution") + "\n")
	b.WriteString(labelStyle.Render("  Success: ") + m.successBar.ViewAs(r.OverallSuccessRate) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", r.OverallSuccessRate*100)) +
		"   " + createSparkline(m.successHistory) + "\n")
	b.WriteString(labelStyle.Render("  Pending plans: ") + valueStyle.Render(fmt.Sprintf("%d", r.PendingPlans)) +
		labelStyle.Render("   Unknown results: ") + valueStyle.Render(fmt.Sprintf("%d", r.UnknownResults)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Last hour") + "\n")
	b.WriteString(labelStyle.Render("  Errors: ") + valueStyle.Render(fmt.Sprintf("%d", r.ErrorsLastHour)) +
		labelStyle.Render("  Critical: ") + criticalStyle(r.CriticalLastHour).Render(fmt.Sprintf("%d", r.CriticalLastHour)) +
		"   " + createSparkline(m.errorHistory) + "\n")

	if len(r.TopPatterns) > 0 {
		b.WriteString("\n" + sectionStyle.Render("┃ Top patterns") + "\n")
		for _, p := range r.TopPatterns {
			b.WriteString(renderSummary(p) + "\n")
		}
	}

	if len(m.status.Services) > 0 {
		b.WriteString("\n" + sectionStyle.Render("┃ Dependencies") + "\n")
		for name, st := range m.status.Services {
			style := healthyStyle
			if st != "ok" {
				style = errorStyle
			}
			b.WriteString(labelStyle.Render("  "+name+": ") + style.Render(st) + "\n")
		}
	}

	b.WriteString("\n" + footer(m.interval))
	return containerStyle.Render(b.String())
}

func statusBadge(status string) string {
	switch status {
	case "ok":
		return healthyStyle.Render("✓ OK")
	case "degraded":
		return warningStyle.Render("⚠ DEGRADED")
	default:
		return errorStyle.Render("✗ " + strings.ToUpper(status))
	}
}

func criticalStyle(n int) lipgloss.Style {
	if n > 0 {
		return errorStyle
	}
	return valueStyle
}

func renderStates(by map[pattern.State]int) string {
	states := []pattern.State{pattern.StateNew, pattern.StateTracking, pattern.StateEscalated, pattern.StateLearned}
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, dimStyle.Render(strings.ToLower(string(s))+"=")+valueStyle.Render(fmt.Sprintf("%d", by[s])))
	}
	return strings.Join(parts, "  ")
}

func renderSummary(p engine.PatternSummary) string {
	preferred := p.PreferredStrategy
	if preferred == "" {
		preferred = "-"
	}
	return fmt.Sprintf("  %s  %s  %s  %s",
		valueStyle.Render(short(p.Signature)),
		labelStyle.Render(fmt.Sprintf("%-18s", p.Kind)),
		valueStyle.Render(fmt.Sprintf("%4d", p.Occurrences)),
		dimStyle.Render(fmt.Sprintf("%s / %s", p.State, preferred)))
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

func footer(interval time.Duration) string {
	return footerKeyStyle.Render("[q]") + dimStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + dimStyle.Render(" refresh  ") +
		dimStyle.Render(fmt.Sprintf("every %v", interval))
}
