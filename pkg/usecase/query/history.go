package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/m-mizutani/aiguide/pkg/model"
)

const DefaultHistoryCapacity = 5

// SessionHistory is a bounded FIFO of answered queries. When an append exceeds capacity the
// oldest entry is dropped. It is safe for concurrent use.
type SessionHistory struct {
	mu       sync.Mutex
	capacity int
	entries  []*model.HistoryEntry
}

// NewSessionHistory creates an empty history. A capacity below 1 falls back to the default.
func NewSessionHistory(capacity int) *SessionHistory {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &SessionHistory{
		capacity: capacity,
		entries:  make([]*model.HistoryEntry, 0, capacity),
	}
}

// Append adds an entry, evicting from the front until the size is within capacity
func (h *SessionHistory) Append(entry *model.HistoryEntry) {
	if entry == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	if over := len(h.entries) - h.capacity; over > 0 {
		clear(h.entries[:over])
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}

func (h *SessionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *SessionHistory) Capacity() int {
	return h.capacity
}

// Entries returns a snapshot, oldest first
func (h *SessionHistory) Entries() []*model.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*model.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Render formats all entries oldest first for inclusion in a prompt. Empty history renders
// as "".
func (h *SessionHistory) Render() string {
	entries := h.Entries()
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### Turn %d\n", i+1)
		fmt.Fprintf(&b, "User query: %s\n", e.Query())
		b.WriteString("Retrieved restaurants: ")
		b.WriteString(flattenResults(e.Results()))
		b.WriteString("\n")
		fmt.Fprintf(&b, "Assistant response: %s\n", e.Response())
	}
	return b.String()
}

func flattenResults(results []*model.SearchResult) string {
	if len(results) == 0 {
		return "none"
	}

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, summarizeRestaurant(r.Restaurant))
	}
	return strings.Join(names, "; ")
}
