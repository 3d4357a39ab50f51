package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"crawldash/internal/api"
	"crawldash/internal/bulk"
	"crawldash/internal/model"
	"crawldash/internal/push"
	"crawldash/internal/store"
)

const (
	searchDebounceWindow = 500 * time.Millisecond
	defaultPageSize      = 10
	requestTimeout       = 30 * time.Second
)

type dashMode int

const (
	dashModeBrowse dashMode = iota
	dashModeDeleteConfirm
	dashModeAddURL
)

type dashModel struct {
	client *api.Client
	coord  *bulk.Coordinator
	jobs   *store.JobStore

	channel   *push.Channel
	chanState push.State

	page     int
	pageSize int

	searchInput   textinput.Model
	searchFocused bool
	appliedSearch string
	searchGen     int
	statusFilter  string

	visible   []model.Job
	heights   *rowHeights
	cursor    int
	scrollTop int

	mode             dashMode
	confirmDeleteIDs []string
	addInput         textinput.Model

	spin          spinner.Model
	loading       bool
	bulkBusy      bool
	statusMessage string
	width         int
	height        int
	quitting      bool
	fatalErr      error
}

type pageLoadedMsg struct {
	jobs []model.Job
	err  error
}

type pushEventMsg struct {
	event model.StatusEvent
}

type pushClosedMsg struct {
	err error
}

type channelDialedMsg struct {
	channel *push.Channel
	err     error
}

type bulkDoneMsg struct {
	report bulk.Report
	err    error
}

type searchDebounceMsg struct {
	gen int
}

type jobAddedMsg struct {
	job model.Job
	err error
}

func runDashboard(args []string) error {
	fs := flag.NewFlagSet("dash", flag.ContinueOnError)
	apiURL := fs.String("api", "", "backend base URL (default: env or "+api.DefaultBaseURL+")")
	token := fs.String("token", "", "bearer token (default: env)")
	pageSize := fs.Int("limit", defaultPageSize, "rows per page")
	workers := fs.Int("workers", bulk.DefaultWorkers, "bulk fan-out bound (0 = unbounded)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("dash requires an interactive terminal (TTY)")
	}

	session, err := api.LoadSession(*apiURL, *token)
	if err != nil {
		return err
	}
	client := api.NewClient(session)

	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "search url or title"
	search.CharLimit = 256

	add := textinput.New()
	add.Prompt = "> "
	add.Placeholder = "https://example.com"
	add.CharLimit = 1024

	m := dashModel{
		client:      client,
		coord:       bulk.NewCoordinator(client, *workers),
		jobs:        store.NewJobStore(),
		chanState:   push.StateConnecting,
		page:        1,
		pageSize:    clampInt(*pageSize, 1, 100),
		searchInput: search,
		addInput:    add,
		heights:     newRowHeights(),
		spin:        spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		loading:     true,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if fm, ok := finalModel.(dashModel); ok {
		if fm.channel != nil {
			fm.channel.Close()
		}
		if err == nil {
			err = fm.fatalErr
		}
	}
	return err
}

func (m dashModel) Init() tea.Cmd {
	return tea.Batch(
		m.loadPageCmd(),
		dialChannelCmd(m.client.Session()),
		m.spin.Tick,
	)
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.loading && !m.bulkBusy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case pageLoadedMsg:
		m.loading = false
		if msg.err != nil {
			// transient notice; the current view stays as it was
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.jobs.ReplacePage(msg.jobs)
		m.refreshVisible(true)
		m.statusMessage = ""
		return m, nil

	case channelDialedMsg:
		if msg.err != nil {
			m.chanState = push.StateDisconnected
			m.statusMessage = "live updates unavailable: " + msg.err.Error()
			return m, nil
		}
		m.channel = msg.channel
		m.chanState = push.StateConnected
		return m, waitForPushCmd(m.channel)

	case pushEventMsg:
		if m.quitting {
			return m, nil
		}
		m.applyPushEvent(msg.event)
		return m, waitForPushCmd(m.channel)

	case pushClosedMsg:
		if m.quitting {
			return m, nil
		}
		m.chanState = push.StateDisconnected
		if msg.err != nil {
			m.statusMessage = "live updates disconnected (press R to reconnect)"
		}
		return m, nil

	case searchDebounceMsg:
		// stale timers from earlier keystrokes carry an old generation
		if msg.gen != m.searchGen || m.quitting {
			return m, nil
		}
		term := strings.TrimSpace(m.searchInput.Value())
		if term == m.appliedSearch {
			return m, nil
		}
		m.appliedSearch = term
		m.refreshVisible(true)
		return m, nil

	case bulkDoneMsg:
		m.bulkBusy = false
		if m.quitting {
			return m, nil
		}
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		bulk.Apply(msg.report, m.jobs)
		m.refreshVisible(msg.report.Kind == bulk.KindDelete)
		m.statusMessage = bulkStatusLine(msg.report)
		return m, nil

	case jobAddedMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "added: " + msg.job.URL
		m.loading = true
		return m, tea.Batch(m.loadPageCmd(), m.spin.Tick)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case dashModeBrowse:
		return m.updateBrowse(keyMsg)
	case dashModeDeleteConfirm:
		return m.updateDeleteConfirm(keyMsg)
	case dashModeAddURL:
		return m.updateAddURL(keyMsg)
	default:
		return m, nil
	}
}

func (m dashModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchFocused {
		switch msg.String() {
		case "esc":
			m.searchFocused = false
			m.searchInput.Blur()
			return m, nil
		case "enter":
			m.searchFocused = false
			m.searchInput.Blur()
			return m, nil
		case "ctrl+c":
			return m.quit()
		}
		before := m.searchInput.Value()
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		if m.searchInput.Value() != before {
			// every keystroke resets the countdown; only the newest
			// generation is allowed to apply
			m.searchGen++
			return m, tea.Batch(cmd, debounceCmd(m.searchGen))
		}
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m.quit()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.scrollCursorIntoView()
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
			m.scrollCursorIntoView()
		}
		return m, nil
	case "left", "h":
		if m.page > 1 {
			m.page--
			m.loading = true
			return m, tea.Batch(m.loadPageCmd(), m.spin.Tick)
		}
		return m, nil
	case "right", "l":
		if m.jobs.Len() >= m.pageSize {
			m.page++
			m.loading = true
			return m, tea.Batch(m.loadPageCmd(), m.spin.Tick)
		}
		return m, nil
	case " ", "space":
		if job, ok := m.cursorJob(); ok {
			m.jobs.ToggleSelect(job.ID)
		}
		return m, nil
	case "/":
		m.searchFocused = true
		m.searchInput.Focus()
		return m, nil
	case "f":
		m.statusFilter = nextStatusFilter(m.statusFilter)
		m.refreshVisible(true)
		return m, nil
	case "n":
		m.mode = dashModeAddURL
		m.addInput.SetValue("")
		m.addInput.Focus()
		return m, nil
	case "r":
		m.loading = true
		return m, tea.Batch(m.loadPageCmd(), m.spin.Tick)
	case "R":
		if m.chanState == push.StateConnected {
			return m, nil
		}
		if m.channel != nil {
			m.channel.Close()
			m.channel = nil
		}
		m.chanState = push.StateConnecting
		return m, dialChannelCmd(m.client.Session())
	case "a", "enter":
		ids := m.actionTargets()
		if len(ids) == 0 {
			m.statusMessage = "nothing to analyze"
			return m, nil
		}
		if m.bulkBusy {
			m.statusMessage = "a bulk operation is already running"
			return m, nil
		}
		m.bulkBusy = true
		m.statusMessage = fmt.Sprintf("analyzing %d...", len(ids))
		return m, tea.Batch(m.runBulkCmd(bulk.KindAnalyze, ids), m.spin.Tick)
	case "d", "x":
		ids := m.actionTargets()
		if len(ids) == 0 {
			m.statusMessage = "nothing to delete"
			return m, nil
		}
		if m.bulkBusy {
			m.statusMessage = "a bulk operation is already running"
			return m, nil
		}
		m.mode = dashModeDeleteConfirm
		m.confirmDeleteIDs = ids
		return m, nil
	}
	return m, nil
}

func (m dashModel) updateDeleteConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "n":
		m.mode = dashModeBrowse
		m.confirmDeleteIDs = nil
		m.statusMessage = "delete cancelled"
		return m, nil
	case "y", "enter":
		ids := m.confirmDeleteIDs
		m.mode = dashModeBrowse
		m.confirmDeleteIDs = nil
		if len(ids) == 0 {
			return m, nil
		}
		m.bulkBusy = true
		m.statusMessage = fmt.Sprintf("deleting %d...", len(ids))
		return m, tea.Batch(m.runBulkCmd(bulk.KindDelete, ids), m.spin.Tick)
	}
	return m, nil
}

func (m dashModel) updateAddURL(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.mode = dashModeBrowse
		m.addInput.Blur()
		m.statusMessage = "add cancelled"
		return m, nil
	case "enter":
		rawURL := strings.TrimSpace(m.addInput.Value())
		m.mode = dashModeBrowse
		m.addInput.Blur()
		if rawURL == "" {
			m.statusMessage = "add cancelled"
			return m, nil
		}
		return m, addURLCmd(m.client, rawURL)
	}
	var cmd tea.Cmd
	m.addInput, cmd = m.addInput.Update(msg)
	return m, cmd
}

func (m dashModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.searchGen++ // orphan any pending debounce timer
	if m.channel != nil {
		m.channel.Close()
	}
	return m, tea.Quit
}

// applyPushEvent feeds one decoded push message into the store. Stale events
// bounce off the store's updated_at guard; events carrying an unknown status
// or an ID outside the current page view are ignored.
func (m *dashModel) applyPushEvent(ev model.StatusEvent) {
	if !model.IsKnownStatus(ev.Status) {
		return
	}
	current, ok := m.jobs.Get(ev.ID)
	if !ok {
		return
	}
	if !m.jobs.Upsert(ev.ApplyTo(current)) {
		return
	}
	for i, job := range m.visible {
		if job.ID == ev.ID {
			m.heights.markDirty(i)
			break
		}
	}
	m.refreshVisible(false)
}

// refreshVisible recomputes the filtered view. sequenceChanged reports that
// rows were added, removed, or reordered, which is exactly when the height
// cache must be invalidated wholesale.
func (m *dashModel) refreshVisible(sequenceChanged bool) {
	before := len(m.visible)
	m.visible = visibleJobs(m.jobs.Jobs(), m.appliedSearch, m.statusFilter)
	if sequenceChanged || len(m.visible) != before {
		m.heights.invalidate()
	}
	if len(m.visible) == 0 {
		m.cursor = 0
		m.scrollTop = 0
		return
	}
	if m.scrollTop > len(m.visible)-1 {
		m.scrollTop = len(m.visible) - 1
	}
	if m.cursor > len(m.visible)-1 {
		m.cursor = len(m.visible) - 1
	}
	m.scrollCursorIntoView()
}

func (m *dashModel) scrollCursorIntoView() {
	viewH := m.listViewHeight()
	if m.cursor <= m.scrollTop {
		m.scrollTop = m.cursor
		return
	}
	sum := 0
	top := m.cursor
	for top >= 0 {
		sum += m.heights.heightOf(top, m.visible[top])
		if sum > viewH {
			top++
			break
		}
		top--
	}
	if top < 0 {
		top = 0
	}
	if m.scrollTop < top {
		m.scrollTop = top
	}
}

func (m dashModel) listViewHeight() int {
	return maxInt(m.height-8, 4)
}

func (m dashModel) cursorJob() (model.Job, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return model.Job{}, false
	}
	return m.visible[m.cursor], true
}

// actionTargets resolves what a bulk action applies to: the selection when
// one exists, else the cursor row.
func (m dashModel) actionTargets() []string {
	if ids := m.jobs.SelectedIDs(); len(ids) > 0 {
		return ids
	}
	if job, ok := m.cursorJob(); ok {
		return []string{job.ID}
	}
	return nil
}

func bulkStatusLine(report bulk.Report) string {
	failed := report.Failed()
	total := len(report.Outcomes)
	if len(failed) == 0 {
		return fmt.Sprintf("%s ok for %d", report.Kind, total)
	}
	parts := make([]string, 0, len(failed))
	for _, o := range failed {
		parts = append(parts, fmt.Sprintf("%s (%v)", shortID(o.ID), o.Err))
	}
	if report.AllFailed() {
		return fmt.Sprintf("error: %s failed for all %d: %s", report.Kind, total, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("warn: %s failed for %d of %d: %s", report.Kind, len(failed), total, strings.Join(parts, "; "))
}

func (m dashModel) loadPageCmd() tea.Cmd {
	client := m.client
	page, limit := m.page, m.pageSize
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		jobs, err := client.ListURLs(ctx, page, limit)
		return pageLoadedMsg{jobs: jobs, err: err}
	}
}

func dialChannelCmd(session api.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ch, err := push.Dial(ctx, session.PushURL(), session.Token)
		return channelDialedMsg{channel: ch, err: err}
	}
}

func waitForPushCmd(ch *push.Channel) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch.Events()
		if !ok {
			return pushClosedMsg{err: ch.Err()}
		}
		return pushEventMsg{event: ev}
	}
}

func (m dashModel) runBulkCmd(kind bulk.Kind, ids []string) tea.Cmd {
	coord := m.coord
	return func() tea.Msg {
		report, err := coord.Run(context.Background(), kind, ids)
		return bulkDoneMsg{report: report, err: err}
	}
}

func addURLCmd(client *api.Client, rawURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		job, err := client.AddURL(ctx, rawURL)
		return jobAddedMsg{job: job, err: err}
	}
}

func debounceCmd(gen int) tea.Cmd {
	return tea.Tick(searchDebounceWindow, func(time.Time) tea.Msg {
		return searchDebounceMsg{gen: gen}
	})
}
