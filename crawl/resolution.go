package crawl

import (
	"sync"

	"github.com/google/uuid"
)

// Resolution is one node in the crawl's dependency tree: a request to
// resolve Hostname as Kind, possibly spawned by another Resolution that
// needed this one's result to make progress.
type Resolution struct {
	Hostname string
	Kind     Kind

	// ID is a per-resolution correlation id threaded through log records,
	// so a single resolution's whole lifetime can be grepped out of a busy
	// crawl's logs.
	ID string

	spawnedBy *Resolution

	mu              sync.Mutex
	status          Status
	spawnedChildren map[string]*Resolution // identity -> child

	result Result
	done   chan struct{}
}

func newResolution(hostname string, kind Kind, spawnedBy *Resolution) *Resolution {
	return &Resolution{
		Hostname:        hostname,
		Kind:            kind,
		ID:              uuid.NewString(),
		spawnedBy:       spawnedBy,
		status:          StatusPending,
		spawnedChildren: map[string]*Resolution{},
		done:            make(chan struct{}),
	}
}

// Identity is the scheduler's dedup/coalescing key: a hostname resolved as
// two different Kinds is tracked as two independent resolutions.
func (r *Resolution) Identity() string {
	return r.Kind.String() + "/" + r.Hostname
}

func (r *Resolution) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Resolution) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *Resolution) addChild(child *Resolution) {
	r.mu.Lock()
	r.spawnedChildren[child.Identity()] = child
	r.mu.Unlock()
}

// finish records result, flips the resolution to DONE, and releases every
// goroutine blocked in Wait. It is safe to call at most once.
func (r *Resolution) finish(result Result) {
	r.mu.Lock()
	r.result = result
	r.status = StatusDone
	r.mu.Unlock()
	close(r.done)
}

// Wait blocks until the resolution is DONE and returns its result.
func (r *Resolution) Wait() Result {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// hasQueuedDescendant performs a forward DFS over this resolution's spawned
// children (and their descendants), reporting whether identity appears
// among them in any status other than DONE. The exclude node's subtree is
// skipped entirely. Combined with an ancestor-chain walk, this is what lets
// the scheduler detect a cycle that would form not through direct lineage
// but through a sibling branch that is still in-flight.
func (r *Resolution) hasQueuedDescendant(identity string, exclude *Resolution, seen map[*Resolution]bool) bool {
	r.mu.Lock()
	children := make([]*Resolution, 0, len(r.spawnedChildren))
	for _, c := range r.spawnedChildren {
		children = append(children, c)
	}
	r.mu.Unlock()

	for _, c := range children {
		if c == exclude || seen[c] {
			continue
		}
		seen[c] = true

		if c.Identity() == identity && c.Status().Queued() {
			return true
		}
		if c.hasQueuedDescendant(identity, exclude, seen) {
			return true
		}
	}
	return false
}
