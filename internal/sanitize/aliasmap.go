package sanitize

// AliasMap resolves sanitized wire names back to the original tool names
// the dispatcher routes on (spec.md §4.1, §4.7). Many originals can
// collide onto the same sanitized name; the first registration wins, as
// tool discovery de-duplicates by original name before sanitizing.
type AliasMap struct {
	sanitizedToOriginal map[string]string
}

// NewAliasMap returns an empty alias map.
func NewAliasMap() *AliasMap {
	return &AliasMap{sanitizedToOriginal: make(map[string]string)}
}

// Add registers original and returns its sanitized form. If a different
// original already claimed that sanitized name, the existing mapping is
// left untouched and the sanitized name is still returned.
func (m *AliasMap) Add(original string) string {
	sanitized := ToolName(original)
	if _, ok := m.sanitizedToOriginal[sanitized]; !ok {
		m.sanitizedToOriginal[sanitized] = original
	}
	return sanitized
}

// Resolve maps a sanitized wire name back to its original, reporting
// whether the mapping exists.
func (m *AliasMap) Resolve(sanitized string) (string, bool) {
	original, ok := m.sanitizedToOriginal[sanitized]
	return original, ok
}

// Len reports the number of distinct sanitized names registered.
func (m *AliasMap) Len() int {
	return len(m.sanitizedToOriginal)
}
