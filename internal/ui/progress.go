// Package ui renders build progress in the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"novus/internal/buildpipeline"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type fileItem struct {
	path    string
	stage   buildpipeline.Stage
	status  buildpipeline.Status
	err     error
	elapsed time.Duration
	// finished counts completed stages.
	finished int
}

func (it *fileItem) settled() bool {
	return it.status == buildpipeline.StatusError ||
		(it.status == buildpipeline.StatusDone && it.stage == buildpipeline.StageWrite)
}

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model
	items   []fileItem
	index   map[string]int
	width   int
	done    bool
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders build progress
// for files until events is closed.
func NewProgressModel(title string, files []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = workingStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		items:   make([]fileItem, len(files)),
		index:   make(map[string]int, len(files)),
		width:   80,
	}
	for i, file := range files {
		m.items[i] = fileItem{path: file, stage: buildpipeline.StageLoad, status: buildpipeline.StatusQueued}
		m.index[file] = i
	}
	return m
}

// Run shows progress on out until events is closed.
func Run(title string, files []string, events <-chan buildpipeline.Event, out io.Writer) error {
	p := tea.NewProgram(NewProgressModel(title, files, events), tea.WithOutput(out), tea.WithInput(nil))
	_, err := p.Run()
	return err
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.listen())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	settled, failed := m.counts()
	header := fmt.Sprintf("%s %d/%d", m.title, settled, len(m.items))
	if failed > 0 {
		header += fmt.Sprintf(", %d failed", failed)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const labelWidth = 12
	nameWidth := max(m.width-labelWidth-16, 20)
	for i := range m.items {
		it := &m.items[i]
		label := fmt.Sprintf("%*s", labelWidth, itemLabel(it))
		fmt.Fprintf(&b, "  %s %s", itemStyle(it).Render(label), truncate(it.path, nameWidth))
		if it.settled() && it.elapsed > 0 {
			fmt.Fprintf(&b, " %s", queuedStyle.Render(it.elapsed.Round(time.Millisecond).String()))
		}
		b.WriteString("\n")
		if it.err != nil {
			fmt.Fprintf(&b, "  %*s %s\n", labelWidth, "", errorStyle.Render(truncate(it.err.Error(), nameWidth)))
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.bar.ViewAs(1.0))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	idx, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	it := &m.items[idx]
	it.stage, it.status = ev.Stage, ev.Status
	switch ev.Status {
	case buildpipeline.StatusDone:
		it.finished++
		it.elapsed += ev.Elapsed
	case buildpipeline.StatusError:
		it.err = ev.Err
		it.elapsed += ev.Elapsed
	}
	return m.bar.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	stages := float64(len(buildpipeline.Stages))
	var total float64
	for i := range m.items {
		if m.items[i].settled() {
			total++
			continue
		}
		total += float64(m.items[i].finished) / stages
	}
	return total / float64(len(m.items))
}

func (m *progressModel) counts() (settled, failed int) {
	for i := range m.items {
		if m.items[i].settled() {
			settled++
		}
		if m.items[i].status == buildpipeline.StatusError {
			failed++
		}
	}
	return settled, failed
}

func itemLabel(it *fileItem) string {
	switch {
	case it.status == buildpipeline.StatusError:
		return "error"
	case it.settled():
		return "done"
	case it.status == buildpipeline.StatusQueued:
		return "queued"
	}
	switch it.stage {
	case buildpipeline.StageLoad:
		return "loading"
	case buildpipeline.StageGenerate:
		return "generating"
	default:
		return "writing"
	}
}

func itemStyle(it *fileItem) lipgloss.Style {
	switch {
	case it.status == buildpipeline.StatusError:
		return errorStyle
	case it.settled():
		return doneStyle
	case it.status == buildpipeline.StatusQueued:
		return queuedStyle
	default:
		return workingStyle
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
