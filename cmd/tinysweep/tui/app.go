package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
)

const (
	recentResults = 8
	logLines      = 5
)

// RunFunc performs the run, reporting each result to onResult.
type RunFunc func(ctx context.Context, onResult func(pipeline.Result)) (pipeline.Summary, error)

// Options configures the TUI.
type Options struct {
	Source string
	Dest   string
	DryRun bool

	// Run is started when the program starts.
	Run RunFunc

	// Scanned reports how many images have been found so far. Optional.
	Scanned func() int64
}

type resultMsg pipeline.Result

type doneMsg struct {
	summary pipeline.Summary
	err     error
}

type logMsg logging.Entry

type tickMsg struct{}

// Model is the Bubble Tea model for a run.
type Model struct {
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	results chan pipeline.Result
	logCh   <-chan logging.Entry
	logs    *logRingBuffer

	spinner spinner.Model
	bar     progress.Model
	start   time.Time

	counts    map[pipeline.Outcome]int
	processed int
	bytesIn   int64
	bytesOut  int64
	recent    []pipeline.Result

	cancelling bool
	finished   bool
	summary    pipeline.Summary
	err        error

	width  int
	height int
}

// NewModel returns a model for opts. logCh may be nil.
func NewModel(opts Options, logCh <-chan logging.Entry) Model {
	ctx, cancel := context.WithCancel(context.Background())

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan pipeline.Result, 64),
		logCh:   logCh,
		logs:    newLogRingBuffer(50),
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		start:   time.Now(),
		counts:  make(map[pipeline.Outcome]int),
		width:   80,
		height:  24,
	}
}

// Init starts the run and the listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startRun(),
		m.listenForResults(),
		m.listenForLogs(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.finished {
				return m, tea.Quit
			}
			m.cancelling = true
			m.cancel()
		}
		return m, nil

	case resultMsg:
		m.record(pipeline.Result(msg))
		return m, m.listenForResults()

	case logMsg:
		m.logs.Add(logging.Entry(msg))
		return m, m.listenForLogs()

	case doneMsg:
		m.finished = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit

	case tickMsg:
		if m.finished {
			return m, nil
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) record(res pipeline.Result) {
	m.processed++
	m.counts[res.Outcome]++
	if res.Outcome == pipeline.OutcomeCompressed {
		m.bytesIn += res.InputSize
		m.bytesOut += res.OutputSize
	}
	if res.Outcome == pipeline.OutcomeIgnored {
		return
	}
	m.recent = append(m.recent, res)
	if len(m.recent) > recentResults {
		m.recent = m.recent[len(m.recent)-recentResults:]
	}
}

// View renders the model.
func (m Model) View() string {
	width := m.width - 4
	if width < 40 {
		width = 40
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("tinysweep"))
	b.WriteString("  ")
	b.WriteString(pathStyle.Render(truncatePath(m.opts.Source, width/2)))
	if m.opts.Dest != "" && m.opts.Dest != m.opts.Source {
		b.WriteString(mutedTextStyle.Render(" -> "))
		b.WriteString(pathStyle.Render(truncatePath(m.opts.Dest, width/2)))
	}
	if m.opts.DryRun {
		b.WriteString(warningTextStyle.Render("  (dry run)"))
	}
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	m.bar.Width = width - 2
	b.WriteString(m.bar.ViewAs(m.percent()))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats())
	b.WriteString("\n\n")

	if len(m.recent) > 0 {
		for _, res := range m.recent {
			b.WriteString(renderResult(res, width))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.logs.Len() > 0 {
		b.WriteString(renderDivider(width))
		b.WriteString("\n")
		b.WriteString(m.logs.render(logLines, logging.LevelInfo, width))
		b.WriteString("\n")
	}

	b.WriteString(mutedTextStyle.Render("ctrl+c to stop"))
	return outerBoxStyle.Render(b.String())
}

func (m Model) renderStatus() string {
	elapsed := time.Since(m.start).Truncate(100 * time.Millisecond)
	switch {
	case m.finished && m.err != nil:
		return errorTextStyle.Render(fmt.Sprintf("Stopped: %v", m.err))
	case m.finished:
		return successTextStyle.Render(fmt.Sprintf("Done in %s", elapsed))
	case m.cancelling:
		return warningTextStyle.Render(fmt.Sprintf("%s Stopping, waiting for requests in flight...", m.spinner.View()))
	default:
		return fmt.Sprintf("%s Compressing %d of %d  %s",
			m.spinner.View(), m.processed, m.total(), mutedTextStyle.Render(elapsed.String()))
	}
}

func (m Model) renderStats() string {
	stat := func(label string, value string) string {
		return statLabelStyle.Render(label+" ") + statValueStyle.Render(value)
	}
	parts := []string{
		stat("compressed", fmt.Sprint(m.counts[pipeline.OutcomeCompressed])),
		stat("skipped", fmt.Sprint(m.counts[pipeline.OutcomeSkipped])),
		stat("failed", fmt.Sprint(m.counts[pipeline.OutcomeFailed])),
	}
	if saved := m.bytesIn - m.bytesOut; saved > 0 {
		parts = append(parts, stat("saved", humanize.Bytes(uint64(saved))))
	}
	return strings.Join(parts, "   ")
}

func renderResult(res pipeline.Result, width int) string {
	label := outcomeStyle(res.Outcome).Render(fmt.Sprintf("%-11s", res.Outcome))
	detail := ""
	switch res.Outcome {
	case pipeline.OutcomeCompressed:
		detail = fmt.Sprintf("%s -> %s", humanize.Bytes(uint64(res.InputSize)), humanize.Bytes(uint64(res.OutputSize)))
	case pipeline.OutcomeFailed:
		if res.Err != nil {
			detail = res.Err.Error()
		}
	}
	line := label + " " + truncatePath(res.Path(), width/2)
	if detail != "" {
		line += "  " + mutedTextStyle.Render(detail)
	}
	return line
}

// total is the number of images known so far. It never drops below the
// processed count while the scan is still running.
func (m Model) total() int64 {
	var total int64
	if m.opts.Scanned != nil {
		total = m.opts.Scanned()
	}
	if processed := int64(m.processed); processed > total {
		total = processed
	}
	return total
}

func (m Model) percent() float64 {
	if m.finished {
		return 1
	}
	total := m.total()
	if total == 0 {
		return 0
	}
	return float64(m.processed) / float64(total)
}

// startRun runs the pipeline in the background and reports its end.
func (m Model) startRun() tea.Cmd {
	results := m.results
	ctx := m.ctx
	run := m.opts.Run
	return func() tea.Msg {
		defer close(results)
		summary, err := run(ctx, func(res pipeline.Result) {
			select {
			case results <- res:
			case <-ctx.Done():
			}
		})
		return doneMsg{summary: summary, err: err}
	}
}

func (m Model) listenForResults() tea.Cmd {
	results := m.results
	return func() tea.Msg {
		res, ok := <-results
		if !ok {
			return nil
		}
		return resultMsg(res)
	}
}

func (m Model) listenForLogs() tea.Cmd {
	ch := m.logCh
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg(e)
	}
}

// Run shows the TUI until the run finishes and returns its summary.
func Run(opts Options) (pipeline.Summary, error) {
	logCh := logging.Subscribe()
	defer logging.Unsubscribe(logCh)

	model := NewModel(opts, logCh)
	defer model.cancel()

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return pipeline.Summary{}, err
	}

	m, ok := final.(Model)
	if !ok || !m.finished {
		return pipeline.Summary{}, context.Canceled
	}
	return m.summary, m.err
}
