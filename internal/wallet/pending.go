package wallet

import "sync"

// PendingSet holds fingerprints of transactions that are in flight or were
// accepted. Entries live for the lifetime of the set; there is no eviction.
type PendingSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func NewPendingSet() *PendingSet {
	return &PendingSet{set: make(map[string]struct{})}
}

// TryAdd inserts fp and reports whether it was absent. Check and insert are
// one step so two concurrent callers cannot both succeed.
func (p *PendingSet) TryAdd(fp string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.set[fp]; exists {
		return false
	}
	p.set[fp] = struct{}{}
	return true
}

func (p *PendingSet) Contains(fp string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.set[fp]
	return exists
}

func (p *PendingSet) Remove(fp string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.set, fp)
}

func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.set)
}

// Reset drops every entry.
func (p *PendingSet) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set = make(map[string]struct{})
}
