package model

import (
	"time"

	"github.com/google/uuid"
)

type HistoryEntryID string

// NewHistoryEntryID generates a new unique HistoryEntryID
func NewHistoryEntryID() HistoryEntryID {
	return HistoryEntryID(uuid.New().String())
}

// SearchResult is one retrieved restaurant
type SearchResult struct {
	Restaurant *Restaurant
	// Similarity is the engine's similarity for the query, higher is closer
	Similarity float64
	// Score is the re-ranking score. It is internal and never shown to users.
	Score float64
	// Rank is the 1-based position after re-ranking, 0 before
	Rank int
}

// Clone returns a deep copy
func (s *SearchResult) Clone() *SearchResult {
	if s == nil {
		return nil
	}
	return &SearchResult{
		Restaurant: s.Restaurant.Clone(),
		Similarity: s.Similarity,
		Score:      s.Score,
		Rank:       s.Rank,
	}
}

// HistoryEntry records one answered query. It is immutable: fields are unexported and
// accessors return copies.
type HistoryEntry struct {
	id        HistoryEntryID
	query     string
	results   []*SearchResult
	response  string
	createdAt time.Time
}

// NewHistoryEntry creates an entry holding its own copy of results
func NewHistoryEntry(query string, results []*SearchResult, response string) *HistoryEntry {
	return &HistoryEntry{
		id:        NewHistoryEntryID(),
		query:     query,
		results:   cloneResults(results),
		response:  response,
		createdAt: time.Now(),
	}
}

func (e *HistoryEntry) ID() HistoryEntryID { return e.id }
func (e *HistoryEntry) Query() string { return e.query }
func (e *HistoryEntry) Response() string { return e.response }
func (e *HistoryEntry) CreatedAt() time.Time { return e.createdAt }
func (e *HistoryEntry) Results() []*SearchResult { return cloneResults(e.results) }

func cloneResults(results []*SearchResult) []*SearchResult {
	out := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.Clone())
	}
	return out
}
