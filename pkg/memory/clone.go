package memory

// Clone returns a deep copy of the entry. Backends hand out clones so callers
// cannot mutate stored state.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Embeddings != nil {
		clone.Embeddings = append([]float32(nil), e.Embeddings...)
	}
	if e.Metadata != nil {
		clone.Metadata = CloneMetadata(e.Metadata)
	}
	if e.RelevanceScore != nil {
		score := *e.RelevanceScore
		clone.RelevanceScore = &score
	}
	return &clone
}

// CloneMetadata copies a flat string map.
func CloneMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
