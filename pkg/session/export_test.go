package session

// LockCount reports how many conversation locks are held or awaited.
func LockCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// PendingCount reports how many conversations have queued writes.
func PendingCount(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
