package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/leadradar/internal/model"
)

// Lines per result in the list view (title + subtitle + blank separator).
const resultItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// LeadFunc extracts a scored lead from a successful result.
type LeadFunc func(r model.Result) (model.Lead, bool)

// entry is one result with its lead, when the payload yields one.
type entry struct {
	result  model.Result
	lead    model.Lead
	hasLead bool
}

type browserModel struct {
	pipeline      string
	succeeded     []entry
	failed        []entry
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=succeeded, 1=failed
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	view           viewState
	detail         entry
	detailViewport viewport.Model
	showPayload    bool

	wantQuit bool
}

func newBrowserModel(pipeline string, results map[string]model.Result, lead LeadFunc) browserModel {
	m := browserModel{pipeline: pipeline}
	for _, r := range results {
		e := entry{result: r}
		if !r.Succeeded() {
			m.failed = append(m.failed, e)
			continue
		}
		if lead != nil {
			e.lead, e.hasLead = lead(r)
		}
		m.succeeded = append(m.succeeded, e)
	}
	slices.SortFunc(m.succeeded, func(a, b entry) int {
		if a.lead.Score != b.lead.Score {
			return b.lead.Score - a.lead.Score
		}
		return strings.Compare(a.result.Key, b.result.Key)
	})
	slices.SortFunc(m.failed, func(a, b entry) int {
		return strings.Compare(a.result.Key, b.result.Key)
	})
	return m
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if url := payloadURL(m.detail.result); url != "" {
			openURL(url)
		}
		return m, nil
	case "r":
		if m.detail.result.Succeeded() {
			m.showPayload = !m.showPayload
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *browserModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.succeeded)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.failed)-1, 0))
	}
}

func (m *browserModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * resultItemHeight
	cursorBottom := cursorTop + resultItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m browserModel) openDetailView() (tea.Model, tea.Cmd) {
	entries := m.activeEntries()
	if len(entries) == 0 {
		return m, nil
	}
	m.view = viewDetail
	m.detail = entries[m.activeCursor()]
	m.showPayload = false
	m.detailViewport = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *browserModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browserModel) recalcContent() {
	m.leftViewport.SetContent(renderEntries(m.succeeded, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderEntries(m.failed, m.rightCursor, m.activePane == 1))
}

func (m browserModel) activeEntries() []entry {
	if m.activePane == 0 {
		return m.succeeded
	}
	return m.failed
}

func (m browserModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browserModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" Succeeded (%d)", len(m.succeeded))
	rightHeader := fmt.Sprintf(" Failed (%d)", len(m.failed))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		leftBorder.Render(m.leftViewport.View()),
		" ",
		rightBorder.Render(m.rightViewport.View()),
	)

	statusText := fmt.Sprintf(" %s: %d results    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		m.pipeline, len(m.succeeded)+len(m.failed))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browserModel) viewDetail() string {
	title := detailTitleStyle.Render("Result Details")
	content := activeBorderStyle.Width(m.width - 2).Render(m.detailViewport.View())

	statusText := " esc/backspace back  ↑/↓ scroll  q quit"
	if m.detail.result.Succeeded() {
		statusText = " r payload" + statusText
	}
	if payloadURL(m.detail.result) != "" {
		statusText = " o open URL " + statusText
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m browserModel) renderDetail() string {
	e := m.detail
	r := e.result
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Key", r.Key)
	addField("Status", string(r.Outcome.Status()))
	if !r.CompletedAt.IsZero() {
		addField("Completed", r.CompletedAt.Local().Format("2006-01-02 15:04 MST"))
	}

	switch o := r.Outcome.(type) {
	case model.Success:
		addField("Tokens", fmt.Sprint(o.Tokens))
	case model.Failure:
		addField("Attempts", fmt.Sprint(o.Attempts))
		b.WriteByte('\n')
		b.WriteString(failStyle.Render("⚠ "+o.Reason) + "\n")
	}

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	if e.hasLead {
		b.WriteByte('\n')
		b.WriteString(divider("── Lead ") + "\n\n")
		addField("Company", e.lead.Company)
		addField("Title", e.lead.Title)
		addField("Score", fmt.Sprintf("%d/10", e.lead.Score))
		if e.lead.Recommendation != "" {
			b.WriteByte('\n')
			b.WriteString(wordWrap(e.lead.Recommendation, wrapWidth) + "\n")
		}
	}

	if r.Succeeded() {
		b.WriteByte('\n')
		if m.showPayload {
			b.WriteString(divider("── Payload ") + "\n\n")
			b.WriteString(prettyJSON(r.Payload()) + "\n")
		} else {
			b.WriteString(hintStyle.Render("  press r to read the full payload") + "\n")
		}
	}

	return b.String()
}

func renderEntries(entries []entry, cursor int, isActive bool) string {
	if len(entries) == 0 {
		return "  (no results)"
	}

	var b strings.Builder
	for i, e := range entries {
		isSelected := isActive && i == cursor

		titleSt := itemTitleStyle
		subtitleSt := itemSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(e.result.Key))
		b.WriteByte('\n')
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(subtitle(e)))
		b.WriteByte('\n')

		if i < len(entries)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func subtitle(e entry) string {
	switch o := e.result.Outcome.(type) {
	case model.Failure:
		return fmt.Sprintf("%d attempts · %s", o.Attempts, truncate(o.Reason, 60))
	case model.Success:
		if e.hasLead {
			return fmt.Sprintf("score %d · %s", e.lead.Score, truncate(e.lead.Title, 60))
		}
		return fmt.Sprintf("%d tokens", o.Tokens)
	}
	return ""
}

// payloadURL returns the posting link of a job payload, or "".
func payloadURL(r model.Result) string {
	var p struct {
		URL      string `json:"job_url"`
		BoardURL string `json:"job_board_url"`
	}
	if payload := r.Payload(); payload == nil || json.Unmarshal(payload, &p) != nil {
		return ""
	}
	if p.URL != "" {
		return p.URL
	}
	return p.BoardURL
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunBrowser launches the split-pane results browser for one pipeline.
// lead may be nil. Returns wantQuit=true if the user pressed q/ctrl+c, false
// if they pressed esc to return to the picker.
func RunBrowser(pipeline string, results map[string]model.Result, lead LeadFunc) (bool, error) {
	p := tea.NewProgram(newBrowserModel(pipeline, results, lead), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(browserModel).wantQuit, nil
}
