package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mukhtiarDev/personal-health-monitor/internal/gate"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

const (
	consoleRefreshEvery = 5 * time.Second
	consoleAuditLimit   = 10
)

// consoleStore is the store surface the console reads and decides through.
type consoleStore interface {
	gate.Store
	ListApprovals(ctx context.Context, status model.ApprovalStatus) ([]model.ApprovalRequest, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type consoleModel struct {
	ctx      context.Context
	store    consoleStore
	operator string

	width  int
	height int

	pending []model.ApprovalRequest
	audit   []model.AuditEntry
	cursor  int

	loading bool
	busy    bool // a decision is in flight
	status  string
	err     error
}

// consoleLoadedMsg carries a refreshed queue and log.
type consoleLoadedMsg struct {
	pending []model.ApprovalRequest
	audit   []model.AuditEntry
	err     error
}

// decisionMsg carries the outcome of an approve or reject.
type decisionMsg struct {
	id       int64
	decision gate.Decision
	approval *model.ApprovalRequest
	err      error
}

type refreshTickMsg time.Time

var (
	consoleTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("62")).
				Padding(0, 1)

	consolePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")).
				Padding(0, 1)

	consoleHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	consoleHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newConsoleModel(ctx context.Context, s consoleStore, operator string) consoleModel {
	return consoleModel{
		ctx:      ctx,
		store:    s,
		operator: operator,
		loading:  true,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(m.load(), scheduleRefresh())
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(consoleRefreshEvery, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func (m consoleModel) load() tea.Cmd {
	return func() tea.Msg {
		pending, err := m.store.ListApprovals(m.ctx, model.ApprovalPending)
		if err != nil {
			return consoleLoadedMsg{err: fmt.Errorf("loading approvals: %w", err)}
		}
		audit, err := m.store.ListAudit(m.ctx, consoleAuditLimit)
		if err != nil {
			return consoleLoadedMsg{err: fmt.Errorf("loading agent log: %w", err)}
		}
		return consoleLoadedMsg{pending: pending, audit: audit}
	}
}

func (m consoleModel) decide(id int64, d gate.Decision) tea.Cmd {
	return func() tea.Msg {
		a, err := gate.Decide(m.ctx, m.store, id, d)
		return decisionMsg{id: id, decision: d, approval: a, err: err}
	}
}

func (m consoleModel) selected() (model.ApprovalRequest, bool) {
	if m.cursor < 0 || m.cursor >= len(m.pending) {
		return model.ApprovalRequest{}, false
	}
	return m.pending[m.cursor], true
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.pending)-1 {
				m.cursor++
			}
			return m, nil
		case "R":
			m.loading = true
			return m, m.load()
		case "a", "r":
			a, ok := m.selected()
			if !ok || m.busy {
				return m, nil
			}
			d := gate.Approve
			if msg.String() == "r" {
				d = gate.Reject
			}
			m.busy = true
			return m, m.decide(a.ID, d)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.load(), scheduleRefresh())

	case consoleLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.pending = msg.pending
		m.audit = msg.audit
		m.err = nil
		if m.cursor >= len(m.pending) {
			m.cursor = max(len(m.pending)-1, 0)
		}
		return m, nil

	case decisionMsg:
		m.busy = false
		switch {
		case errors.Is(msg.err, gate.ErrNotPending):
			m.status = errorStyle.Render(fmt.Sprintf("#%d is already %s.", msg.id, msg.approval.Status))
		case errors.Is(msg.err, gate.ErrNotFound):
			m.status = errorStyle.Render(fmt.Sprintf("#%d no longer exists.", msg.id))
		case msg.err != nil:
			m.status = errorStyle.Render(fmt.Sprintf("#%d: %v", msg.id, msg.err))
		default:
			m.status = okStyle.Render(fmt.Sprintf("#%d %s by %s.", msg.id, msg.approval.Status, m.operator))
		}
		m.loading = true
		return m, m.load()
	}

	return m, nil
}

func (m consoleModel) View() string {
	title := consoleTitleStyle.Render(" Health Monitor: Approval Queue ")
	help := consoleHelpStyle.Render("j/k: move | a: approve | r: reject | R: refresh | q: quit")

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}
	if m.loading && m.pending == nil && m.audit == nil {
		return fmt.Sprintf("%s\n\n  Loading...\n\n%s", title, help)
	}

	width := m.width - 4
	if width < 40 {
		width = 76
	}
	queue := consolePanelStyle.Width(width).Render(m.renderQueue())
	log := consolePanelStyle.Width(width).Render(m.renderAudit())

	out := fmt.Sprintf("%s\n\n%s\n%s\n", title, queue, log)
	if m.status != "" {
		out += "\n  " + m.status + "\n"
	}
	return out + "\n" + help
}

func (m consoleModel) renderQueue() string {
	var b strings.Builder
	b.WriteString(consoleHeaderStyle.Render(fmt.Sprintf("Pending approvals (%d)", len(m.pending))))
	b.WriteString("\n")

	if len(m.pending) == 0 {
		b.WriteString("  No pending approvals.")
		return b.String()
	}
	for i, a := range m.pending {
		line := fmt.Sprintf("#%-5d %s  %s", a.ID, a.Timestamp.UTC().Format("15:04:05"), a.ActionDescription)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m consoleModel) renderAudit() string {
	var b strings.Builder
	b.WriteString(consoleHeaderStyle.Render("Agent log"))
	b.WriteString("\n")

	if len(m.audit) == 0 {
		b.WriteString("  No entries yet.")
		return b.String()
	}
	for _, e := range m.audit {
		sev := styleForPriority(e.Priority).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(e.Priority))))
		fmt.Fprintf(&b, "  %s %s %s: %s\n", e.Timestamp.UTC().Format("15:04:05"), sev, e.AgentName, e.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleForPriority(p model.Priority) lipgloss.Style {
	switch p {
	case model.PriorityCritical:
		return criticalStyle
	case model.PriorityWarning:
		return warningStyle
	case model.PriorityInfo:
		return infoStyle
	default:
		return lipgloss.NewStyle()
	}
}

var consoleOperator string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive approval queue for operators",
	Long: `Open a terminal view of pending approval requests and the recent agent
log. Approve the selected request with a, reject it with r, refresh with R.

The console writes to Postgres directly, so it needs postgres_dsn rather
than an operator token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv(false)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck // best-effort flush

		st, err := store.Open(cmd.Context(), cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		p := tea.NewProgram(newConsoleModel(cmd.Context(), st, consoleOperator), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleOperator, "operator", "console", "name shown for decisions made here")
	rootCmd.AddCommand(consoleCmd)
}
