package storage

import (
	"sort"
	"strings"

	"github.com/goclaw/agentmemory/pkg/memory"
)

// SortRecentFirst orders entries by descending timestamp, breaking ties by ID
// so repeated listings are stable.
func SortRecentFirst(entries []*memory.MemoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}

// Truncate caps entries at limit. A non-positive limit returns an empty slice.
func Truncate(entries []*memory.MemoryEntry, limit int) []*memory.MemoryEntry {
	if limit <= 0 {
		return []*memory.MemoryEntry{}
	}
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// SortMatches orders vector matches by descending score, breaking ties by ID.
func SortMatches(matches []VectorMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}

// ContainsContent reports whether the entry content contains query. Backends
// that filter in process share this rule so substring search behaves the same
// everywhere.
func ContainsContent(entry *memory.MemoryEntry, query string) bool {
	return strings.Contains(entry.Content, query)
}
