package sim

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// batchMsg reports one batch handed to the wrapped sink.
type batchMsg struct {
	records int
	hour    time.Time
	tag     telemetry.Tag
	err     error
}

// statusMsg carries a status snapshot polled from the simulator.
type statusMsg struct{ Status }

type setStatusSourceMsg struct{ fn func() Status }

type tickMsg time.Time

const (
	statusPollInterval = 250 * time.Millisecond
	maxLogLines        = 500
)

var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleValue    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	styleOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleErr      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleDisabled = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// TUIWriter forwards batches to another RecordWriter and renders run progress
// with a bubbletea TUI.
type TUIWriter struct {
	next       RecordWriter
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program in front of next. Quitting the TUI
// interrupts the process so the run shuts down like on Ctrl+C.
func NewTUIWriter(cfg *config.SimulationConfig, next RecordWriter) *TUIWriter {
	w := &TUIWriter{next: next, done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteBatch implements RecordWriter.
func (w *TUIWriter) WriteBatch(ctx context.Context, rows []telemetry.Record) error {
	err := w.next.WriteBatch(ctx, rows)
	msg := batchMsg{records: len(rows), err: err}
	if n := len(rows); n > 0 {
		msg.hour = rows[n-1].Hour
		msg.tag = rows[n-1].Disruption
	}
	w.program.Send(msg)
	return err
}

// SetStatusSource installs the function the TUI polls for run status.
func (w *TUIWriter) SetStatusSource(fn func() Status) {
	w.program.Send(setStatusSourceMsg{fn: fn})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg        *config.SimulationConfig
	table      table.Model
	bar        progress.Model
	vp         viewport.Model
	statusFn   func() Status
	status     Status
	seenEvents int
	logs       []string
	batches    int
	failed     int
	lastHour   time.Time
	lastTag    telemetry.Tag
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
	header     string
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 14},
		{Title: "Value", Width: 10},
		{Title: "Config", Width: 14},
		{Title: "Value", Width: 10},
	}
	rows := []table.Row{
		{"Nodes", fmt.Sprint(cfg.Nodes), "Hours", fmt.Sprint(cfg.Hours)},
		{"Queries", fmt.Sprint(cfg.Queries), "Disruptions", fmt.Sprint(cfg.Disruptions)},
		{"Metrics", fmt.Sprint(cfg.Metrics), "Threads", fmt.Sprint(cfg.Threads)},
		{"Sink", cfg.Sink.Type, "Bulk Size", fmt.Sprint(cfg.BulkSize)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	m := tuiModel{
		cfg:        cfg,
		table:      t,
		bar:        progress.New(progress.WithDefaultGradient()),
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
	m.header = m.renderHeader()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(statusPollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m tuiModel) Init() tea.Cmd { return tick() }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(msg.Width-4, 10)
		m.vp.Width = msg.Width
		m.header = m.renderHeader()
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "?":
			m.help = !m.help
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case tickMsg:
		if m.statusFn != nil {
			m = m.applyStatus(m.statusFn())
		}
		return m, tick()
	case statusMsg:
		m = m.applyStatus(msg.Status)
	case setStatusSourceMsg:
		m.statusFn = msg.fn
	case batchMsg:
		m.batches++
		m.lastHour, m.lastTag = msg.hour, msg.tag
		if msg.err != nil {
			m.failed++
			m.appendLog(styleErr.Render(fmt.Sprintf("batch of %d records failed: %v", msg.records, msg.err)))
		}
	}
	return m, nil
}

func (m tuiModel) applyStatus(st Status) tuiModel {
	refresh := st.RunID != m.status.RunID
	m.status = st
	if refresh {
		m.header = m.renderHeader()
		m.updateViewportHeight()
	}
	for _, e := range st.Events[min(m.seenEvents, len(st.Events)):] {
		m.appendLog(renderEvent(e))
	}
	m.seenEvents = len(st.Events)
	return m
}

func renderEvent(e ProgressEvent) string {
	style := styleValue
	switch e.Type {
	case EventDisruptionStart:
		style = styleWarn
	case EventDisruptionEnd, EventRunComplete:
		style = styleOK
	case EventDisruptionShadowed:
		style = styleDisabled
	}
	line := fmt.Sprintf("%s hour %-6d %s", styleLabel.Render(e.Timestamp.Format(time.TimeOnly)), e.Hour, style.Render(e.Type))
	if e.Details != "" {
		line += " " + e.Details
	}
	return line
}

func (m *tuiModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.header) - lipgloss.Height(m.renderSummary()) - 4
	m.vp.Height = max(h, 0)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			l = wordwrap.String(l, m.vp.Width)
		}
		lines = append(lines, l)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) percent() float64 {
	if m.status.ExpectedRecords <= 0 {
		return 0
	}
	return min(float64(m.status.Records)/float64(m.status.ExpectedRecords), 1)
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 1))
	return strings.Join([]string{
		m.header,
		divider,
		m.bar.ViewAs(m.percent()),
		m.renderSummary(),
		divider,
		m.vp.View(),
	}, "\n")
}

func (m tuiModel) renderHeader() string {
	title := styleTitle.Render("hotcloud-sim")
	if m.status.RunID != "" {
		title += styleLabel.Render(" run " + m.status.RunID)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View())
}

func (m tuiModel) renderSummary() string {
	st := m.status
	field := func(label string, v any) string {
		return styleLabel.Render(label+" ") + styleValue.Render(fmt.Sprint(v))
	}
	active := styleDisabled.Render("none")
	if st.ActiveDisruption != "" {
		active = styleWarn.Render(st.ActiveDisruption)
	}
	failed := styleOK.Render("0")
	if st.Dispatch.FailedBatches > 0 {
		failed = styleErr.Render(fmt.Sprintf("%d (%d records lost)", st.Dispatch.FailedBatches, st.Dispatch.LostRecords))
	}
	hour := ""
	if !m.lastHour.IsZero() {
		hour = m.lastHour.Format(telemetry.HourLayout)
	}
	return strings.Join([]string{
		strings.Join([]string{
			field("hour", fmt.Sprintf("%d/%d", st.Hour+1, st.Hours)),
			field("records", fmt.Sprintf("%d/%d", st.Records, st.ExpectedRecords)),
			field("in flight", st.Dispatch.InFlight),
		}, "  "),
		strings.Join([]string{
			styleLabel.Render("disruption ") + active,
			field("activated", st.DisruptionsActivated),
			field("shadowed", st.DisruptionsShadowed),
		}, "  "),
		strings.Join([]string{
			field("batches", m.batches),
			styleLabel.Render("failed ") + failed,
			field("last", hour),
			field("tag", m.lastTag),
		}, "  "),
	}, "\n")
}

func (m tuiModel) renderHelp() string {
	return strings.Join([]string{
		styleTitle.Render("Keys"),
		"  q        quit and stop the run",
		"  w        toggle line wrap",
		"  s        toggle autoscroll",
		"  ↑/↓      scroll the event log",
		"  ?        toggle this help",
	}, "\n")
}
