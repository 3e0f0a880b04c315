package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/nexus/internal/board"
	"github.com/hylla/nexus/internal/domain"
)

// Service is the remote or local task store the board talks to.
type Service interface {
	board.Transport
	board.Source
}

// inputMode represents a selectable mode.
type inputMode int

// modeNone and related constants define package defaults.
const (
	modeNone inputMode = iota
	modeBlockReason
	modeReasonInfo
)

// Model is the Kanban board program state.
type Model struct {
	svc         Service
	projectID   string
	projectName string
	rec         *board.Reconciler

	selectedColumn int
	selectedTask   int

	mode        inputMode
	reasonInput textinput.Model
	submitting  bool
	infoTaskID  string
	infoBody    string

	status string
	err    error

	help     help.Model
	keys     keyMap
	markdown *markdownRenderer
	copyText func(string) error

	ready  bool
	width  int
	height int
}

// loadedMsg carries message data through update handling.
type loadedMsg struct {
	tasks []domain.Task
	err   error
}

// transitionDoneMsg carries one remote transition response.
type transitionDoneMsg struct {
	call *board.Call
	task domain.Task
	err  error
}

// reasonsLoadedMsg carries the block-reason history of one task.
type reasonsLoadedMsg struct {
	taskID   string
	comments []domain.Comment
	err      error
}

// NewModel constructs a new value for this package.
func NewModel(svc Service, projectID string, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:         svc,
		projectID:   projectID,
		projectName: projectID,
		rec:         board.NewReconciler(svc, nil),
		reasonInput: newModalInput("reason: ", "why is this task blocked?", "", 500),
		status:      "loading...",
		help:        h,
		keys:        newKeyMap(),
		markdown:    &markdownRenderer{},
		copyText:    systemClipboard,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// newModalInput constructs modal input.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Close stops reconciling. Responses still in flight are dropped.
func (m Model) Close() {
	m.rec.Close()
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		focus := m.selectedTaskID()
		m.rec.Refresh(msg.tasks)
		if m.mode == modeBlockReason {
			if _, open := m.rec.Gate(); !open {
				m.closeReasonDialog()
			}
		}
		m.focusTask(focus)
		if m.status == "" || m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case transitionDoneMsg:
		out := m.rec.Complete(msg.call, msg.task, msg.err)
		return m.applyOutcome(out)

	case reasonsLoadedMsg:
		if msg.taskID != m.infoTaskID || m.mode != modeReasonInfo {
			return m, nil
		}
		if msg.err != nil {
			m.status = "block reasons unavailable: " + msg.err.Error()
			m.mode = modeNone
			return m, nil
		}
		title := msg.taskID
		if card, _, ok := m.rec.Working().Find(msg.taskID); ok {
			title = card.Title
		}
		m.infoBody = reasonsMarkdown(title, msg.comments)
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleNormalModeKey(msg)

	default:
		return m, nil
	}
}

// handleNormalModeKey handles board navigation and moves.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.rec.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case msg.String() == "esc":
		m.help.ShowAll = false
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.moveLeft):
		m.selectedColumn = clamp(m.selectedColumn-1, 0, len(domain.Statuses())-1)
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		m.selectedColumn = clamp(m.selectedColumn+1, 0, len(domain.Statuses())-1)
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.selectedTask--
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selectedTask++
		m.clampSelection()
		return m, nil
	case key.Matches(msg, m.keys.moveTaskLeft):
		return m.moveSelected(-1)
	case key.Matches(msg, m.keys.moveTaskRight):
		return m.moveSelected(1)
	case key.Matches(msg, m.keys.reorderUp):
		return m.reorderSelected(-1)
	case key.Matches(msg, m.keys.reorderDown):
		return m.reorderSelected(1)
	case key.Matches(msg, m.keys.blockTask):
		return m.blockSelected()
	case key.Matches(msg, m.keys.editReason):
		card, ok := m.selectedCard()
		if !ok {
			return m, nil
		}
		return m.applyOutcome(m.rec.EditBlockReason(card.ID))
	case key.Matches(msg, m.keys.taskInfo):
		card, ok := m.selectedCard()
		if !ok {
			return m, nil
		}
		m.mode = modeReasonInfo
		m.infoTaskID = card.ID
		m.infoBody = ""
		return m, m.loadReasons(card.ID)
	case key.Matches(msg, m.keys.copyID):
		card, ok := m.selectedCard()
		if !ok {
			return m, nil
		}
		if err := m.copyText(card.ID); err != nil {
			m.status = "copy failed: " + err.Error()
			return m, nil
		}
		m.status = "copied " + card.ID
		return m, nil
	default:
		return m, nil
	}
}

// handleInputModeKey handles the block-reason dialog and the reasons pane.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeReasonInfo {
		switch {
		case msg.String() == "esc", key.Matches(msg, m.keys.taskInfo), key.Matches(msg, m.keys.quit):
			m.mode = modeNone
			m.infoTaskID = ""
			m.infoBody = ""
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		if m.submitting {
			return m, nil
		}
		out := m.rec.CancelBlock()
		m.closeReasonDialog()
		if out.Kind == board.OutcomeCanceled {
			m.status = "block canceled"
		}
		return m, nil
	case "enter":
		if m.submitting {
			return m, nil
		}
		out, call := m.rec.PlanResolve(m.reasonInput.Value())
		if call == nil {
			return m.applyOutcome(out)
		}
		m.submitting = true
		m.status = "blocking..."
		return m, m.execute(call)
	}

	var cmd tea.Cmd
	m.reasonInput, cmd = m.reasonInput.Update(msg)
	return m, cmd
}

// moveSelected moves the selected card one column over.
func (m Model) moveSelected(delta int) (tea.Model, tea.Cmd) {
	card, ok := m.selectedCard()
	if !ok {
		return m, nil
	}
	statuses := domain.Statuses()
	target := card.Status.Index() + delta
	if target < 0 || target >= len(statuses) {
		return m, nil
	}
	return m.planMove(card, statuses[target], len(m.rec.Working().Column(statuses[target])))
}

// blockSelected sends the selected card to BLOCKED, which opens the reason dialog.
func (m Model) blockSelected() (tea.Model, tea.Cmd) {
	card, ok := m.selectedCard()
	if !ok {
		return m, nil
	}
	if card.Status == domain.StatusBlocked {
		return m.applyOutcome(m.rec.EditBlockReason(card.ID))
	}
	return m.planMove(card, domain.StatusBlocked, len(m.rec.Working().Column(domain.StatusBlocked)))
}

// reorderSelected moves the selected card within its column.
func (m Model) reorderSelected(delta int) (tea.Model, tea.Cmd) {
	card, ok := m.selectedCard()
	if !ok {
		return m, nil
	}
	return m.planMove(card, card.Status, m.selectedTask+delta)
}

func (m Model) planMove(card board.Card, to domain.Status, index int) (tea.Model, tea.Cmd) {
	out, call := m.rec.Plan(board.MoveIntent{
		TaskID:     card.ID,
		FromStatus: card.Status,
		ToStatus:   to,
		FromIndex:  m.selectedTask,
		ToIndex:    index,
	})
	next, cmd := m.applyOutcome(out)
	if call == nil {
		return next, cmd
	}
	return next, tea.Batch(cmd, m.execute(call))
}

// execute runs one planned call off the update loop.
func (m Model) execute(call *board.Call) tea.Cmd {
	rec := m.rec
	return func() tea.Msg {
		task, err := rec.Execute(context.Background(), call)
		return transitionDoneMsg{call: call, task: task, err: err}
	}
}

// applyOutcome folds one reconciler outcome into the view state.
func (m Model) applyOutcome(out board.Outcome) (Model, tea.Cmd) {
	switch out.Kind {
	case board.OutcomePending, board.OutcomeReordered:
		m.focusTask(out.TaskID)
		m.status = "ready"
	case board.OutcomeCommitted:
		if m.mode == modeBlockReason {
			if _, open := m.rec.Gate(); !open {
				m.closeReasonDialog()
			}
		}
		m.status = fmt.Sprintf("%s → %s", out.Task.Title, out.Task.Status.Label())
	case board.OutcomeAwaitingReason:
		m.mode = modeBlockReason
		m.submitting = false
		m.reasonInput.SetValue("")
		if out.TaskID != "" {
			if card, _, ok := m.rec.Working().Find(out.TaskID); ok && card.Status == domain.StatusBlocked {
				m.reasonInput.SetValue(card.LastBlockReason)
				m.reasonInput.CursorEnd()
			}
		}
		m.status = "enter a block reason"
		cmd := m.reasonInput.Focus()
		return m, cmd
	case board.OutcomeGateRejected:
		m.submitting = false
		if _, open := m.rec.Gate(); !open {
			m.closeReasonDialog()
		}
		m.status = out.Message
	case board.OutcomeRolledBack, board.OutcomeInvalid:
		m.status = out.Message
	case board.OutcomeCanceled, board.OutcomeDiscarded:
	}
	m.clampSelection()
	if out.Refresh {
		return m, m.loadData
	}
	return m, nil
}

func (m *Model) closeReasonDialog() {
	m.mode = modeNone
	m.submitting = false
	m.reasonInput.Blur()
	m.reasonInput.SetValue("")
}

// selectedStatus returns the status of the focused column.
func (m Model) selectedStatus() domain.Status {
	statuses := domain.Statuses()
	return statuses[clamp(m.selectedColumn, 0, len(statuses)-1)]
}

// selectedCard returns the focused card, if any.
func (m Model) selectedCard() (board.Card, bool) {
	cards := m.rec.Working().Column(m.selectedStatus())
	if m.selectedTask < 0 || m.selectedTask >= len(cards) {
		return board.Card{}, false
	}
	return cards[m.selectedTask], true
}

func (m Model) selectedTaskID() string {
	card, ok := m.selectedCard()
	if !ok {
		return ""
	}
	return card.ID
}

// focusTask moves the selection onto taskID when it is on the board.
func (m *Model) focusTask(taskID string) {
	if taskID != "" {
		if card, index, ok := m.rec.Working().Find(taskID); ok {
			m.selectedColumn = card.Status.Index()
			m.selectedTask = index
			return
		}
	}
	m.clampSelection()
}

func (m *Model) clampSelection() {
	m.selectedColumn = clamp(m.selectedColumn, 0, len(domain.Statuses())-1)
	count := len(m.rec.Working().Column(m.selectedStatus()))
	m.selectedTask = clamp(m.selectedTask, 0, count-1)
}

// loadData loads required data for the current operation.
func (m Model) loadData() tea.Msg {
	tasks, err := m.svc.ListBoard(context.Background(), m.projectID)
	return loadedMsg{tasks: tasks, err: err}
}

// loadReasons fetches the block-reason history of one task.
func (m Model) loadReasons(taskID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		comments, err := svc.ListBlockReasons(context.Background(), taskID)
		return reasonsLoadedMsg{taskID: taskID, comments: comments, err: err}
	}
}

// View handles view.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render draws the full screen as text.
func (m Model) render() string {
	if m.err != nil {
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	}
	if !m.ready {
		return "loading..."
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	header := titleStyle.Render("nexus") + "  " + m.projectName
	body := m.renderBoard(accent, muted, dim)

	sections := []string{header, "", body}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	fullContent := content + "\n" + helpLine

	overlay := m.renderModeOverlay(accent, muted, m.width-8)
	if m.help.ShowAll {
		overlay = m.renderHelpOverlay(accent, muted, m.width-8)
	}
	if overlay != "" {
		overlayHeight := lipgloss.Height(fullContent)
		if m.height > 0 {
			overlayHeight = m.height
		}
		fullContent = overlayOnContent(fullContent, overlay, max(1, m.width), max(1, overlayHeight))
	}
	return fullContent
}

// renderBoard renders the four status columns of the working projection.
func (m Model) renderBoard(accent, muted, dim color.Color) string {
	statuses := domain.Statuses()
	working := m.rec.Working()
	colWidth := max(16, (m.width-len(statuses)*3)/len(statuses)-4)

	baseColStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1).
		MarginRight(1).
		Width(colWidth)
	selColStyle := baseColStyle.BorderForeground(accent)
	colTitle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	selectedTaskStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	subStyle := lipgloss.NewStyle().Foreground(muted)
	blockedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	views := make([]string, 0, len(statuses))
	for colIdx, status := range statuses {
		cards := working.Column(status)
		lines := []string{colTitle.Render(fmt.Sprintf("%s (%d)", status.Label(), len(cards)))}
		if len(cards) == 0 {
			lines = append(lines, emptyStyle.Render("(empty)"))
		}
		for taskIdx, card := range cards {
			selected := colIdx == m.selectedColumn && taskIdx == m.selectedTask
			prefix := "  "
			if selected {
				prefix = "│ "
			}
			if m.rec.InFlight(card.ID) {
				prefix += "… "
			}
			title := prefix + truncate(card.Title, max(1, colWidth-len([]rune(prefix))-2))
			if selected {
				title = selectedTaskStyle.Render(title)
			}
			lines = append(lines, title)
			if card.AssigneeID != "" {
				lines = append(lines, "  "+subStyle.Render(truncate("@"+card.AssigneeID, colWidth-4)))
			}
			if status == domain.StatusBlocked && card.LastBlockReason != "" {
				lines = append(lines, "  "+blockedStyle.Render(truncate(card.LastBlockReason, colWidth-4)))
			}
		}
		content := strings.Join(lines, "\n")
		if colIdx == m.selectedColumn {
			views = append(views, selColStyle.Render(content))
		} else {
			views = append(views, baseColStyle.Render(content))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// renderModeOverlay renders the block dialog or the reasons pane.
func (m Model) renderModeOverlay(accent, muted color.Color, maxWidth int) string {
	width := clamp(maxWidth, 30, 80)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(width)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	switch m.mode {
	case modeBlockReason:
		intent, ok := m.rec.Gate()
		if !ok {
			return ""
		}
		title := intent.TaskID
		if card, _, found := m.rec.Working().Find(intent.TaskID); found {
			title = card.Title
		}
		heading := "Block task"
		if intent.FromStatus == domain.StatusBlocked {
			heading = "Edit block reason"
		}
		lines := []string{
			titleStyle.Render(heading + ": " + truncate(title, width-len(heading)-4)),
			"",
			m.reasonInput.View(),
			"",
			hintStyle.Render("enter save • esc cancel"),
		}
		return box.Render(strings.Join(lines, "\n"))
	case modeReasonInfo:
		body := m.infoBody
		if body == "" {
			return box.Render(hintStyle.Render("loading block reasons..."))
		}
		return box.Render(m.markdown.render(body, width-4) + "\n" + hintStyle.Render("esc close"))
	default:
		return ""
	}
}

// renderHelpOverlay renders the full key help.
func (m Model) renderHelpOverlay(accent, muted color.Color, maxWidth int) string {
	h := m.help
	h.ShowAll = true
	h.SetWidth(clamp(maxWidth, 30, 100))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Foreground(muted).
		Padding(0, 1).
		Render(h.View(m.keys))
}

// clamp bounds v to [minV, maxV]; an empty range yields minV.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	return min(max(v, minV), maxV)
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay above base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate truncates s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
