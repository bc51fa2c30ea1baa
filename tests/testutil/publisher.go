package testutil

import (
	"sync"

	"github.com/nhle/workcal/internal/model"
)

// RecordingPublisher stores every published snapshot.
type RecordingPublisher struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

// Publish records snap.
func (p *RecordingPublisher) Publish(snap model.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap.Clone())
}

// Published returns a copy of everything published so far.
func (p *RecordingPublisher) Published() []model.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Snapshot, len(p.snaps))
	copy(out, p.snaps)
	return out
}

// Count returns how many snapshots were published.
func (p *RecordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}
