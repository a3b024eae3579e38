package dashboard

import "sync"

// Notifications counts novelty events since the last Clear.
type Notifications struct {
	mu    sync.Mutex
	count int
}

// Count returns the current counter value.
func (n *Notifications) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

// OnNovelty increments the counter and returns the new value.
func (n *Notifications) OnNovelty() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return n.count
}

// Clear resets the counter to zero.
func (n *Notifications) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count = 0
}
