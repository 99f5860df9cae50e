package models

// CacheStats reports fixture cache metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// EntryIssue describes a fixture entry that breaks the store invariants.
type EntryIssue struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}
