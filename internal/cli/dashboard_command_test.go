package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"crawldash/internal/api"
	"crawldash/internal/bulk"
	"crawldash/internal/model"
	"crawldash/internal/push"
	"crawldash/internal/store"
)

func newDashTestModel(jobs ...model.Job) dashModel {
	m := dashModel{
		jobs:        store.NewJobStore(),
		heights:     newRowHeights(),
		page:        1,
		pageSize:    defaultPageSize,
		searchInput: textinput.New(),
		addInput:    textinput.New(),
		width:       100,
		height:      30,
	}
	for _, j := range jobs {
		m.jobs.Upsert(j)
	}
	m.refreshVisible(true)
	return m
}

func asDash(t *testing.T, tm tea.Model) dashModel {
	t.Helper()
	m, ok := tm.(dashModel)
	if !ok {
		t.Fatalf("unexpected model type %T", tm)
	}
	return m
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPageLoadedReplacesView(t *testing.T) {
	m := newDashTestModel(model.Job{ID: "old", URL: "https://old.test"})
	m.loading = true

	tm, _ := m.Update(pageLoadedMsg{jobs: []model.Job{
		{ID: "a", URL: "https://a.test", Status: model.StatusPending},
		{ID: "b", URL: "https://b.test", Status: model.StatusCompleted},
	}})
	m = asDash(t, tm)

	if m.loading {
		t.Fatal("page load must clear the loading flag")
	}
	if len(m.visible) != 2 || m.visible[0].ID != "a" {
		t.Fatalf("unexpected visible rows: %+v", m.visible)
	}
	if _, ok := m.jobs.Get("old"); ok {
		t.Fatal("rows absent from the fetched page must be dropped")
	}
}

func TestPageLoadErrorKeepsCurrentView(t *testing.T) {
	m := newDashTestModel(model.Job{ID: "a", URL: "https://a.test"})

	tm, _ := m.Update(pageLoadedMsg{err: errors.New("dial tcp: refused")})
	m = asDash(t, tm)

	if len(m.visible) != 1 {
		t.Fatal("a failed fetch must leave the current rows untouched")
	}
	if !strings.HasPrefix(m.statusMessage, "error:") {
		t.Fatalf("expected error status line, got %q", m.statusMessage)
	}
}

func TestPushEventUpdatesRowInPlace(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://a.test", Status: model.StatusProcessing, UpdatedAt: base},
		model.Job{ID: "b", URL: "https://b.test", Status: model.StatusPending, UpdatedAt: base},
	)

	tm, _ := m.Update(pushEventMsg{event: model.StatusEvent{
		ID:          "a",
		Status:      model.StatusCompleted,
		Title:       "Example Domain",
		HTMLVersion: "HTML5",
		UpdatedAt:   base.Add(time.Second),
	}})
	m = asDash(t, tm)

	got, _ := m.jobs.Get("a")
	if got.Status != model.StatusCompleted || got.Title != "Example Domain" {
		t.Fatalf("event not applied: %+v", got)
	}
	if m.visible[0].ID != "a" || m.visible[1].ID != "b" {
		t.Fatal("an in-place update must not reorder rows")
	}
}

func TestStalePushEventIsDiscarded(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://a.test", Status: model.StatusCompleted, Title: "Fresh", UpdatedAt: base},
	)

	tm, _ := m.Update(pushEventMsg{event: model.StatusEvent{
		ID:        "a",
		Status:    model.StatusProcessing,
		UpdatedAt: base.Add(-time.Minute),
	}})
	m = asDash(t, tm)

	got, _ := m.jobs.Get("a")
	if got.Status != model.StatusCompleted || got.Title != "Fresh" {
		t.Fatalf("stale event must bounce off, got %+v", got)
	}
}

func TestPushEventForUnknownIDIsIgnored(t *testing.T) {
	m := newDashTestModel(model.Job{ID: "a", URL: "https://a.test"})

	tm, _ := m.Update(pushEventMsg{event: model.StatusEvent{ID: "ghost", Status: model.StatusCompleted, UpdatedAt: time.Now()}})
	m = asDash(t, tm)

	if m.jobs.Len() != 1 {
		t.Fatal("events for ids outside the page must not create rows")
	}
}

func TestPushEventWithUnknownStatusIsIgnored(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://a.test", Status: model.StatusProcessing, UpdatedAt: base},
	)

	tm, _ := m.Update(pushEventMsg{event: model.StatusEvent{
		ID:        "a",
		Status:    "exploded",
		UpdatedAt: base.Add(time.Second),
	}})
	m = asDash(t, tm)

	got, _ := m.jobs.Get("a")
	if got.Status != model.StatusProcessing {
		t.Fatalf("an event outside the status vocabulary must not apply, got %q", got.Status)
	}
}

func TestReconnectKeyClosesPreviousChannel(t *testing.T) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	old, err := push.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), "")
	if err != nil {
		t.Fatal(err)
	}

	m := newDashTestModel()
	m.client = api.NewClient(api.Session{BaseURL: ts.URL, HTTPClient: http.DefaultClient})
	m.channel = old
	m.chanState = push.StateDisconnected

	tm, cmd := m.updateBrowse(keyRunes("R"))
	m = asDash(t, tm)

	if cmd == nil {
		t.Fatal("reconnect must dial a fresh channel")
	}
	if m.channel != nil {
		t.Fatal("the previous channel must be discarded before redialing")
	}
	if m.chanState != push.StateConnecting {
		t.Fatalf("expected connecting, got %v", m.chanState)
	}

	select {
	case _, ok := <-old.Events():
		if ok {
			t.Fatal("the old channel's event queue must be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("the old channel was never closed")
	}
	if old.Err() != nil {
		t.Fatalf("discarding a dead channel is a local close, got %v", old.Err())
	}
}

func TestSequenceChangeKeepsScrollPosition(t *testing.T) {
	jobs := make([]model.Job, 0, 12)
	for i := 0; i < 12; i++ {
		jobs = append(jobs, model.Job{ID: string(rune('a' + i)), URL: "https://site.test"})
	}
	m := newDashTestModel(jobs...)
	m.height = 10
	m.cursor = 8
	m.scrollTop = 5

	report := bulk.Report{
		Kind:     bulk.KindDelete,
		Outcomes: []bulk.Outcome{{ID: "l"}},
	}
	tm, _ := m.Update(bulkDoneMsg{report: report})
	m = asDash(t, tm)

	if len(m.visible) != 11 {
		t.Fatalf("expected 11 rows after delete, got %d", len(m.visible))
	}
	if m.scrollTop != 5 {
		t.Fatalf("a row removal must not yank the viewport to the top, scrollTop = %d", m.scrollTop)
	}
	if m.cursor != 8 {
		t.Fatalf("cursor must hold its position, got %d", m.cursor)
	}
}

func TestSearchDebounceAppliesOnceWithLastValue(t *testing.T) {
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://example.com"},
		model.Job{ID: "b", URL: "https://golang.org"},
	)
	m.searchFocused = true
	m.searchInput.Focus()

	var gens []int
	for _, r := range []string{"g", "o", "l"} {
		tm, _ := m.Update(keyRunes(r))
		m = asDash(t, tm)
		gens = append(gens, m.searchGen)
	}
	if m.appliedSearch != "" {
		t.Fatal("typing alone must not apply the filter")
	}

	// timers from the first two keystrokes fire with stale generations
	for _, g := range gens[:2] {
		tm, _ := m.Update(searchDebounceMsg{gen: g})
		m = asDash(t, tm)
		if m.appliedSearch != "" {
			t.Fatalf("stale generation %d must be ignored", g)
		}
	}

	tm, _ := m.Update(searchDebounceMsg{gen: gens[2]})
	m = asDash(t, tm)
	if m.appliedSearch != "gol" {
		t.Fatalf("expected applied search %q, got %q", "gol", m.appliedSearch)
	}
	if len(m.visible) != 1 || m.visible[0].ID != "b" {
		t.Fatalf("unexpected filtered rows: %+v", m.visible)
	}
}

func TestQuitOrphansPendingDebounce(t *testing.T) {
	m := newDashTestModel(model.Job{ID: "a", URL: "https://example.com"})
	m.searchFocused = true
	m.searchInput.Focus()

	tm, _ := m.Update(keyRunes("x"))
	m = asDash(t, tm)
	pending := m.searchGen

	tm, _ = m.updateBrowse(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = asDash(t, tm)
	if !m.quitting {
		t.Fatal("ctrl+c must quit")
	}

	tm, _ = m.Update(searchDebounceMsg{gen: pending})
	m = asDash(t, tm)
	if m.appliedSearch != "" {
		t.Fatal("a debounce timer firing after quit must be a no-op")
	}
}

func TestBulkDonePartialFailureWarnsAndKeepsFailureSelected(t *testing.T) {
	now := time.Now()
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://a.test", Status: model.StatusPending, UpdatedAt: now},
		model.Job{ID: "b", URL: "https://b.test", Status: model.StatusPending, UpdatedAt: now},
		model.Job{ID: "c", URL: "https://c.test", Status: model.StatusPending, UpdatedAt: now},
	)
	for _, id := range []string{"a", "b", "c"} {
		m.jobs.Select(id)
	}
	m.bulkBusy = true

	report := bulk.Report{
		Kind: bulk.KindAnalyze,
		Outcomes: []bulk.Outcome{
			{ID: "a", Job: model.Job{ID: "a", URL: "https://a.test", Status: model.StatusProcessing, UpdatedAt: now.Add(time.Second)}},
			{ID: "b", Err: errors.New("backend returned 502")},
			{ID: "c", Job: model.Job{ID: "c", URL: "https://c.test", Status: model.StatusProcessing, UpdatedAt: now.Add(time.Second)}},
		},
	}
	tm, _ := m.Update(bulkDoneMsg{report: report})
	m = asDash(t, tm)

	if m.bulkBusy {
		t.Fatal("bulk completion must clear the busy flag")
	}
	if !strings.HasPrefix(m.statusMessage, "warn:") {
		t.Fatalf("partial failure must warn, got %q", m.statusMessage)
	}
	if ids := m.jobs.SelectedIDs(); len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("only the failed id stays selected, got %v", ids)
	}
	gotA, _ := m.jobs.Get("a")
	if gotA.Status != model.StatusProcessing {
		t.Fatalf("successful outcome must land in the store, got %q", gotA.Status)
	}
}

func TestBulkDoneAllFailedEscalates(t *testing.T) {
	m := newDashTestModel(model.Job{ID: "a", URL: "https://a.test"})
	m.bulkBusy = true

	report := bulk.Report{
		Kind:     bulk.KindDelete,
		Outcomes: []bulk.Outcome{{ID: "a", Err: errors.New("down")}},
	}
	tm, _ := m.Update(bulkDoneMsg{report: report})
	m = asDash(t, tm)

	if !strings.HasPrefix(m.statusMessage, "error:") {
		t.Fatalf("all-failed must escalate to an error line, got %q", m.statusMessage)
	}
	if _, ok := m.jobs.Get("a"); !ok {
		t.Fatal("a failed delete must leave the row in place")
	}
}

func TestBulkDeleteSuccessRemovesRowsAndResetsHeights(t *testing.T) {
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://a.test"},
		model.Job{ID: "b", URL: "https://b.test"},
		model.Job{ID: "c", URL: "https://c.test"},
	)
	for i, j := range m.visible {
		m.heights.heightOf(i, j)
	}

	report := bulk.Report{
		Kind:     bulk.KindDelete,
		Outcomes: []bulk.Outcome{{ID: "b"}},
	}
	tm, _ := m.Update(bulkDoneMsg{report: report})
	m = asDash(t, tm)

	if len(m.visible) != 2 || m.visible[0].ID != "a" || m.visible[1].ID != "c" {
		t.Fatalf("unexpected rows after delete: %+v", m.visible)
	}
	if m.heights.computed() != 0 {
		t.Fatalf("removal must invalidate the height cache, %d entries survived", m.heights.computed())
	}
}

func TestSpaceTogglesSelectionAtCursor(t *testing.T) {
	m := newDashTestModel(
		model.Job{ID: "a", URL: "https://a.test"},
		model.Job{ID: "b", URL: "https://b.test"},
	)
	m.cursor = 1

	tm, _ := m.updateBrowse(keyRunes(" "))
	m = asDash(t, tm)
	if !m.jobs.IsSelected("b") {
		t.Fatal("space must select the cursor row")
	}

	tm, _ = m.updateBrowse(keyRunes(" "))
	m = asDash(t, tm)
	if m.jobs.IsSelected("b") {
		t.Fatal("space must toggle the selection off again")
	}
}

func TestDeleteKeyRequiresConfirmation(t *testing.T) {
	m := newDashTestModel(model.Job{ID: "a", URL: "https://a.test"})

	tm, _ := m.updateBrowse(keyRunes("d"))
	m = asDash(t, tm)
	if m.mode != dashModeDeleteConfirm {
		t.Fatal("delete must enter the confirmation mode first")
	}
	if len(m.confirmDeleteIDs) != 1 || m.confirmDeleteIDs[0] != "a" {
		t.Fatalf("unexpected pending ids: %v", m.confirmDeleteIDs)
	}

	tm, _ = m.updateDeleteConfirm(tea.KeyMsg{Type: tea.KeyEsc})
	m = asDash(t, tm)
	if m.mode != dashModeBrowse || m.confirmDeleteIDs != nil {
		t.Fatal("esc must cancel the pending delete")
	}
	if _, ok := m.jobs.Get("a"); !ok {
		t.Fatal("cancelled delete must not touch the store")
	}
}

func TestChannelCloseShowsReconnectHint(t *testing.T) {
	m := newDashTestModel()
	m.chanState = push.StateConnected

	tm, _ := m.Update(pushClosedMsg{err: errors.New("unexpected EOF")})
	m = asDash(t, tm)

	if m.chanState != push.StateDisconnected {
		t.Fatalf("expected disconnected, got %v", m.chanState)
	}
	if !strings.Contains(m.statusMessage, "R to reconnect") {
		t.Fatalf("expected reconnect hint, got %q", m.statusMessage)
	}
}
