package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"crawldash/internal/model"
	"crawldash/internal/push"
)

var (
	dashTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dashMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dashErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	dashWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dashOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dashPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dashSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)

	statusStyles = map[string]lipgloss.Style{
		model.StatusPending:    dashMutedStyle,
		model.StatusProcessing: dashWarnStyle,
		model.StatusCompleted:  dashOKStyle,
		model.StatusFailed:     dashErrorStyle,
	}
)

func (m dashModel) View() string {
	if m.fatalErr != nil {
		return dashErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case dashModeDeleteConfirm:
		return m.viewDeleteConfirm()
	case dashModeAddURL:
		return m.viewAddURL()
	default:
		return m.viewBrowse()
	}
}

func (m dashModel) viewBrowse() string {
	header := dashTitleStyle.Render("crawldash") + "  " + m.renderChannelBadge() + "\n" +
		dashMutedStyle.Render("up/down: move | space: select | a: analyze | d: delete | n: add url | /: search | f: filter | h/l: page | r: refresh | q: quit")

	filterLine := m.renderFilterLine()

	if m.width < 90 {
		list := m.renderListPanel(m.width)
		details := m.renderDetailsPanel(m.width)
		body := lipgloss.JoinVertical(lipgloss.Left, list, details)
		return lipgloss.JoinVertical(lipgloss.Left, header, filterLine, body, m.renderStatusLine(m.width))
	}

	rightW := clampInt(m.width/3, 30, 48)
	leftW := m.width - rightW - 1
	list := m.renderListPanel(leftW)
	details := m.renderDetailsPanel(rightW)
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, details)
	return lipgloss.JoinVertical(lipgloss.Left, header, filterLine, body, m.renderStatusLine(m.width))
}

func (m dashModel) renderChannelBadge() string {
	switch m.chanState {
	case push.StateConnected:
		return dashOKStyle.Render("live")
	case push.StateConnecting:
		return dashMutedStyle.Render("connecting")
	default:
		return dashErrorStyle.Render("offline")
	}
}

func (m dashModel) renderFilterLine() string {
	filter := "all"
	if m.statusFilter != "" {
		filter = m.statusFilter
	}
	search := m.searchInput.View()
	if !m.searchFocused && strings.TrimSpace(m.searchInput.Value()) == "" {
		search = dashMutedStyle.Render("/ to search")
	}
	info := fmt.Sprintf("page %d | %d rows | filter %s | selected %d", m.page, len(m.visible), filter, m.jobs.SelectionCount())
	if m.loading || m.bulkBusy {
		info = m.spin.View() + " " + info
	}
	return search + "  " + dashMutedStyle.Render(info)
}

// renderListPanel renders only the window of rows that can appear in the
// viewport, plus a fixed overscan margin each side, against the memoized
// height cache. Rows outside the window are never measured or rendered.
func (m dashModel) renderListPanel(width int) string {
	viewH := m.listViewHeight()
	innerW := maxInt(width-4, 10)

	if len(m.visible) == 0 {
		empty := dashMutedStyle.Render("No URLs on this page.")
		if m.appliedSearch != "" || m.statusFilter != "" {
			empty = dashMutedStyle.Render("No rows match the current search/filter.")
		}
		return dashPanelStyle.Width(width).Height(viewH).Render(empty)
	}

	start := maxInt(m.scrollTop-overscanRows, 0)
	skip := 0
	for i := start; i < m.scrollTop; i++ {
		skip += m.heights.heightOf(i, m.visible[i])
	}

	lines := make([]string, 0, viewH+2*overscanRows)
	rendered := 0
	for i := start; i < len(m.visible); i++ {
		if rendered >= skip+viewH+overscanRows {
			break
		}
		rowLines := m.renderRow(i, innerW)
		lines = append(lines, rowLines...)
		rendered += len(rowLines)
	}

	if skip > len(lines) {
		skip = maxInt(len(lines)-1, 0)
	}
	end := skip + viewH
	if end > len(lines) {
		end = len(lines)
	}
	visibleLines := lines[skip:end]

	content := strings.Join(visibleLines, "\n")
	if m.scrollTop > 0 {
		content = dashMutedStyle.Render("...") + "\n" + content
	}
	return dashPanelStyle.Width(width).Render(content)
}

func (m dashModel) renderRow(i, width int) []string {
	job := m.visible[i]
	h := m.heights.heightOf(i, job)

	mark := " "
	if m.jobs.IsSelected(job.ID) {
		mark = "x"
	}
	badge := renderStatusBadge(job.Status)

	firstURL, secondURL := job.URL, ""
	if h > baseRowLines {
		firstURL, secondURL = splitLongURL(job.URL)
	}

	lines := make([]string, 0, h)
	first := fmt.Sprintf("[%s] %-10s %s  %s", mark, badge, shortID(job.ID), firstURL)
	lines = append(lines, first)
	if secondURL != "" {
		lines = append(lines, "               "+truncateRunes(secondURL, maxInt(width-15, 8)))
	}
	if job.Title != "" {
		lines = append(lines, "               "+dashMutedStyle.Render(truncateRunes(job.Title, maxInt(width-15, 8))))
	}
	for len(lines) < h {
		lines = append(lines, "")
	}

	for j := range lines {
		lines[j] = truncateRunes(lines[j], width)
		if i == m.cursor {
			lines[j] = dashSelStyle.Width(width).Render(lines[j])
		}
	}
	return lines
}

func renderStatusBadge(status string) string {
	style, ok := statusStyles[status]
	if !ok {
		style = dashMutedStyle
	}
	return style.Render(status)
}

func (m dashModel) renderDetailsPanel(width int) string {
	lines := []string{"Job Details", ""}
	job, ok := m.cursorJob()
	if !ok {
		lines = append(lines, dashMutedStyle.Render("No row under cursor."))
	} else {
		lines = append(lines, kv("id", job.ID))
		lines = append(lines, kv("url", job.URL))
		lines = append(lines, kv("status", job.Status))
		if job.Status == model.StatusCompleted {
			lines = append(lines, kv("title", defaultIfEmpty(job.Title, "(none)")))
			lines = append(lines, kv("html_version", defaultIfEmpty(job.HTMLVersion, "unknown")))
			lines = append(lines, kv("login_form", yesNo(job.LoginForm)))
			lines = append(lines, "")
			lines = append(lines, dashMutedStyle.Render("crawldash show "+job.ID+" for the full analysis"))
		}
		if job.Status == model.StatusFailed && job.LastError != "" {
			lines = append(lines, kv("last_error", job.LastError))
		}
		if !job.UpdatedAt.IsZero() {
			lines = append(lines, kv("updated_at", job.UpdatedAt.Format("15:04:05")))
		}
	}

	innerW := maxInt(width-6, 12)
	for i := range lines {
		lines[i] = truncateRunes(lines[i], innerW)
	}
	return dashPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m dashModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = "Tip: select rows with space, then a or d for bulk analyze/delete."
	}
	style := dashMutedStyle
	switch {
	case strings.HasPrefix(msg, "error:"):
		style = dashErrorStyle
	case strings.HasPrefix(msg, "warn:"):
		style = dashWarnStyle
	case strings.HasPrefix(msg, "added:") || strings.HasSuffix(msg, "ok"):
		style = dashOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func (m dashModel) viewDeleteConfirm() string {
	ids := m.confirmDeleteIDs
	preview := make([]string, 0, len(ids))
	for i, id := range ids {
		if i == 4 && len(ids) > 5 {
			preview = append(preview, fmt.Sprintf("... and %d more", len(ids)-i))
			break
		}
		if job, ok := m.jobs.Get(id); ok {
			preview = append(preview, truncateRunes(job.URL, 48))
		} else {
			preview = append(preview, shortID(id))
		}
	}
	text := fmt.Sprintf(
		"Delete %d URL(s) from the backend?\n\n%s\n\nPress y or Enter to confirm, n or Esc to cancel.",
		len(ids), strings.Join(preview, "\n"),
	)
	boxW := clampInt(m.width-8, 36, 80)
	panel := dashPanelStyle.Width(boxW).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func (m dashModel) viewAddURL() string {
	text := "Add URL\n\n" + m.addInput.View() + "\n\n" +
		dashMutedStyle.Render("Enter to submit, Esc to cancel.")
	boxW := clampInt(m.width-8, 36, 90)
	panel := dashPanelStyle.Width(boxW).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}
