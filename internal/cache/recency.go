package cache

// touchLocked stamps key with the next recency token.
func (m *Manager[T]) touchLocked(key string) {
	m.tick++
	m.recency[key] = m.tick
}

// evictLeastRecentlyUsedLocked removes the key with the smallest recency
// token. Tokens are unique, so there are no ties.
func (m *Manager[T]) evictLeastRecentlyUsedLocked() (string, bool) {
	var victim string
	var oldest uint64
	found := false
	for key, token := range m.recency {
		if !found || token < oldest {
			victim, oldest, found = key, token, true
		}
	}
	if !found {
		return "", false
	}
	m.removeLocked(victim)
	return victim, true
}
