package cli

import (
	"unicode/utf8"

	"crawldash/internal/model"
)

const (
	baseRowLines     = 1
	longURLThreshold = 50

	// overscanRows renders this many extra rows beyond the viewport in each
	// direction so fast scrolling never shows a blank band. Performance
	// knob only; correctness never depends on it.
	overscanRows = 4
)

// rowHeight derives a row's line count from its content: long URLs wrap to a
// second line and a title adds a detail line. Length is measured in runes so
// multi-byte IRIs wrap at the same visual point as ASCII.
func rowHeight(job model.Job) int {
	lines := baseRowLines
	if utf8.RuneCountInString(job.URL) > longURLThreshold {
		lines++
	}
	if job.Title != "" {
		lines++
	}
	return lines
}

// splitLongURL breaks a URL for two-line rendering at the wrap threshold,
// never mid-rune.
func splitLongURL(url string) (string, string) {
	r := []rune(url)
	if len(r) <= longURLThreshold {
		return url, ""
	}
	return string(r[:longURLThreshold]), string(r[longURLThreshold:])
}

// rowHeights memoizes per-index row heights for the visible sequence. Zero
// means not yet computed; heights are filled lazily on the render pass, so
// only rows that actually render pay for a recompute.
type rowHeights struct {
	lines []int
}

func newRowHeights() *rowHeights {
	return &rowHeights{}
}

// heightOf returns the memoized height for index i, computing it from the
// job on first use after (in)validation.
func (h *rowHeights) heightOf(i int, job model.Job) int {
	h.ensure(i + 1)
	if h.lines[i] == 0 {
		h.lines[i] = rowHeight(job)
	}
	return h.lines[i]
}

// invalidate drops every cached height. Called exactly when the underlying
// ordered sequence changes: rows inserted, removed, or reordered.
func (h *rowHeights) invalidate() {
	h.lines = h.lines[:0]
}

// markDirty drops a single row's height after an in-place field update. The
// fresh value is computed on the next render pass that includes the row.
func (h *rowHeights) markDirty(i int) {
	if i >= 0 && i < len(h.lines) {
		h.lines[i] = 0
	}
}

// computed counts cached entries, used to assert cache freshness.
func (h *rowHeights) computed() int {
	n := 0
	for _, v := range h.lines {
		if v > 0 {
			n++
		}
	}
	return n
}

func (h *rowHeights) ensure(n int) {
	for len(h.lines) < n {
		h.lines = append(h.lines, 0)
	}
}
