// Package crawl implements the cooperative scheduler and resolution state
// machine that drives a non-recursive DNS crawl: resolving a hostname's
// authoritative NS set means spawning further resolutions for its parent
// domain and for the nameservers' own addresses, coalescing duplicate
// work, and detecting cycles in the resulting dependency graph.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/classmarkets/queue-crawler/dnsval"
	"github.com/classmarkets/queue-crawler/querycache"
	"github.com/classmarkets/queue-crawler/relation"
	"github.com/classmarkets/queue-crawler/wire"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Scheduler owns the dependency graph of in-flight and finished
// Resolutions for one crawl run. It enforces a ceiling on how many
// resolutions may be ACTIVE or QUERYING at once, coalesces requests to
// resolve the same identity (hostname, kind) into a single execution, and
// refuses to spawn a resolution that would close a cycle back onto one of
// its own ancestors.
type Scheduler struct {
	cache *querycache.QueryCache
	sem   *semaphore.Weighted
	log   *slog.Logger

	wg sync.WaitGroup

	mu    sync.Mutex
	nodes map[string]*Resolution

	// RootHints seeds resolution of the root zone. Defaults to
	// dnsval.RootHints(); tests substitute an in-process root server here.
	RootHints *dnsval.NSRBlock
}

// NewScheduler returns a Scheduler that dispatches wire queries through
// cache and admits at most maxActiveResolutions concurrently ACTIVE or
// QUERYING resolutions. A non-positive maxActiveResolutions disables the
// ceiling.
func NewScheduler(cache *querycache.QueryCache, maxActiveResolutions int64, log *slog.Logger) *Scheduler {
	if maxActiveResolutions <= 0 {
		maxActiveResolutions = 1 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cache:     cache,
		sem:       semaphore.NewWeighted(maxActiveResolutions),
		log:       log,
		nodes:     map[string]*Resolution{},
		RootHints: dnsval.RootHints(),
	}
}

// Spawn requests a resolution of hostname as kind. If an identical
// resolution is already known (in flight or finished), the existing node is
// returned and no new work is started. If admitting a new resolution would
// require spawnedBy to (transitively) depend on its own result, the
// resulting node is created already DONE with CodeLoopDetected instead of
// being scheduled.
func (s *Scheduler) Spawn(ctx context.Context, hostname string, kind Kind, spawnedBy *Resolution) *Resolution {
	hostname = dnsval.Normalize(hostname)
	identity := kind.String() + "/" + hostname

	s.mu.Lock()

	// Cycle detection runs before the coalescing lookup: awaiting an
	// in-flight resolution that is (transitively) awaiting us would
	// deadlock just as surely as scheduling a fresh one. The loop node is
	// returned detached, never stored in s.nodes, so the identity is not
	// poisoned: once the blocking branch has drained, a later spawn of the
	// same identity schedules normally.
	if spawnedBy != nil && s.detectsCycle(identity, spawnedBy) {
		s.mu.Unlock()
		s.log.Warn("loop detected", "hostname", hostname, "kind", kind.String(), "spawned_by", spawnedBy.Hostname)
		loop := newResolution(hostname, kind, spawnedBy)
		loop.finish(Result{Code: CodeLoopDetected, NSRs: dnsval.NewNSRBlock(hostname)})
		return loop
	}

	if existing, ok := s.nodes[identity]; ok {
		s.mu.Unlock()
		if spawnedBy != nil {
			spawnedBy.addChild(existing)
		}
		return existing
	}

	node := newResolution(hostname, kind, spawnedBy)
	s.nodes[identity] = node
	s.mu.Unlock()

	if spawnedBy != nil {
		spawnedBy.addChild(node)
	}

	s.runAsync(ctx, node)
	return node
}

// detectsCycle reports whether identity already appears among spawnedBy's
// ancestors, or among any ancestor's still-queued spawned children outside
// spawnedBy's own subtree. The first check catches direct recursion (A
// depends on B depends on A); the second catches a cycle that would close
// through a sibling branch that hasn't finished yet. spawnedBy's own
// subtree is excluded because its entries are work spawnedBy itself is
// waiting on, which a repeated spawn coalesces with instead of looping
// through.
func (s *Scheduler) detectsCycle(identity string, spawnedBy *Resolution) bool {
	seen := map[*Resolution]bool{}
	for anc := spawnedBy; anc != nil; anc = anc.spawnedBy {
		if anc.Identity() == identity {
			return true
		}
		if anc.hasQueuedDescendant(identity, spawnedBy, seen) {
			return true
		}
	}
	return false
}

func (s *Scheduler) runAsync(ctx context.Context, node *Resolution) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			node.finish(Result{Code: CodeError, NSRs: dnsval.NewNSRBlock(node.Hostname), Err: err})
			return
		}
		defer s.sem.Release(1)

		s.log.Debug("resolution starting", "id", node.ID, "hostname", node.Hostname, "kind", node.Kind.String())
		node.setStatus(StatusActive)

		result := s.resolve(ctx, node)
		node.finish(result)

		s.log.Debug("resolution finished", "id", node.ID, "hostname", node.Hostname, "kind", node.Kind.String(), "code", result.Code)
	}()
}

// Wait blocks until every resolution spawned through this scheduler has
// finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// await parks node in BLOCKED until child finishes. The node's admission
// slot is given back for the duration: the concurrency ceiling counts
// ACTIVE and QUERYING resolutions, and a resolution waiting on a spawned
// dependency is neither. Holding the slot across the wait would deadlock a
// dependency chain longer than the ceiling.
//
// The reacquire is unconditional: a resolution, once admitted, always runs
// to completion. Only the initial admission in runAsync observes ctx, so
// the slot accounting in runAsync stays balanced.
func (s *Scheduler) await(node, child *Resolution) Result {
	node.setStatus(StatusBlocked)
	s.sem.Release(1)

	result := child.Wait()

	_ = s.sem.Acquire(context.Background(), 1)
	node.setStatus(StatusActive)
	return result
}

func (s *Scheduler) resolve(ctx context.Context, node *Resolution) Result {
	switch {
	case node.Kind.IsAuthNS():
		return s.resolveAuthNS(ctx, node)
	default:
		return s.resolveIP(ctx, node)
	}
}

// resolveAuthNS resolves node's combined parent+child-side authoritative NS
// set: it loads the parent domain's idea of who serves this domain (the
// parent-side view), then asks those servers directly for their own idea of
// the NS set (the child-side view), and merges the two.
func (s *Scheduler) resolveAuthNS(ctx context.Context, node *Resolution) Result {
	domain := node.Hostname

	// The root has no parent to ask: answer straight from the hints, with
	// no wire traffic.
	if domain == dnsval.Root {
		return Result{Code: CodeSuccess, NSRs: s.RootHints}
	}

	parent := s.Spawn(ctx, dnsval.ParentDomain(domain), node.Kind.ParentKind(), node)
	parentResult := s.await(node, parent)

	if parentResult.Code == CodeLoopDetected && !node.Kind.Shallow() {
		// The comprehensive parent spawn would have closed a cycle. Retry
		// it in shallow mode, which refuses the recursion that caused the
		// loop; only if that fails too does the loop propagate.
		parent = s.Spawn(ctx, dnsval.ParentDomain(domain), KindShallowAuthNS, node)
		parentResult = s.await(node, parent)
	}

	switch parentResult.Code {
	case CodeLoopDetected:
		return Result{Code: CodeLoopDetected, NSRs: dnsval.NewNSRBlock(domain)}
	case CodeError:
		return Result{Code: CodeError, NSRs: dnsval.NewNSRBlock(domain), Err: parentResult.Err}
	}
	if parentResult.NSRs == nil || parentResult.NSRs.Empty() {
		return Result{Code: CodeWarning, NSRs: dnsval.NewNSRBlock(domain)}
	}

	authParent, code := s.captureSide(ctx, node, domain, parentResult.NSRs)
	if code == CodeError {
		return Result{Code: CodeError, NSRs: dnsval.NewNSRBlock(domain)}
	}
	if code == CodeWarning {
		return Result{Code: CodeWarning, NSRs: dnsval.NewNSRBlock(domain)}
	}

	// Child-side failures end the resolution the same way parent-side ones
	// do: a zone whose own nameservers can't answer for it has no usable
	// child-side view, and reporting just the parent-side block as SUCCESS
	// would overstate what was verified.
	authChild, childCode := s.captureSide(ctx, node, domain, authParent)
	if childCode == CodeError {
		return Result{Code: CodeError, NSRs: dnsval.NewNSRBlock(domain)}
	}
	if childCode == CodeWarning {
		return Result{Code: CodeWarning, NSRs: dnsval.NewNSRBlock(domain)}
	}

	combined := authParent.Merge(authChild, dnsval.JoinOuter)
	if combined.Empty() {
		return Result{Code: CodeWarning, NSRs: combined}
	}
	return Result{Code: CodeSuccess, NSRs: combined}
}

// captureSide issues one NS query for domain against target and interprets
// the response: the NS set of the closest superdomain covering domain wins;
// a response with no covering NS set but an SOA marks an empty non-terminal,
// for which the current target is reused; anything else captures as an empty
// block. The captured block is left-joined with target (keep what was
// captured, enrich matching entries with target knowledge) and any
// cross-zone NSRs in the result are resolved. The same logic serves both
// the parent-side capture (target = the parent's NSRBlock) and the
// child-side capture (target = authParent).
func (s *Scheduler) captureSide(ctx context.Context, node *Resolution, domain string, target *dnsval.NSRBlock) (*dnsval.NSRBlock, ResponseCode) {
	queryTarget := s.ensureQueryable(ctx, node, target)
	if queryTarget.Empty() {
		return dnsval.NewNSRBlock(domain), CodeWarning
	}

	// The block asks for both NS and A: the NS answer drives the capture,
	// and any A records that ride along (glue and co-located addresses) are
	// folded into the relation map below, saving cross-zone spawns later.
	node.setStatus(StatusQuerying)
	blockResp, err := s.query(ctx, domain, []wire.RType{wire.RTypeNS, wire.RTypeA}, queryTarget)
	node.setStatus(StatusActive)
	if err != nil {
		return dnsval.NewNSRBlock(domain), CodeError
	}
	resp := blockResp.Data[wire.RTypeNS]
	if resp.Status == wire.StatusTimeout {
		return dnsval.NewNSRBlock(domain), CodeWarning
	}
	// Any non-NOERROR rcode ends the branch: NXDOMAIN, SERVFAIL, REFUSED
	// and the rest all mean no NS set can be captured from this response.
	if resp.RCode != "NOERROR" {
		return dnsval.NewNSRBlock(domain), CodeError
	}

	drm := relation.ParseNS(resp, blockResp.Data[wire.RTypeA])
	closest := dnsval.ClosestSuperdomain(domain, drm.HostsWithNameservers(), true)

	var captured *dnsval.NSRBlock
	if closest != "" {
		captured = drm.GetNSRBlock(closest)
	}
	if captured == nil {
		if len(drm.Records(dnsval.TypeSOA)) > 0 {
			// Empty non-terminal: NOERROR, no NS block for domain, but an
			// SOA is present. Reuse the current target as the NS block.
			captured = target
		} else {
			captured = dnsval.NewNSRBlock(domain)
		}
	}

	merged := captured.Merge(target, dnsval.JoinLeft)
	merged.Name = domain

	return s.ensureQueryable(ctx, node, merged), CodeSuccess
}

// resolveIP resolves the address records for hostname: it spawns a
// comprehensive AuthNS resolution for hostname itself (the same identity,
// not its parent) to obtain the combined NS set, then asks those servers
// directly for hostname's own A records.
func (s *Scheduler) resolveIP(ctx context.Context, node *Resolution) Result {
	hostname := node.Hostname

	auth := s.Spawn(ctx, hostname, node.Kind.AuthKind(), node)
	authResult := s.await(node, auth)

	if authResult.Code == CodeLoopDetected && !node.Kind.Shallow() {
		// Same repair path as the AuthNS parent spawn: a loop through the
		// comprehensive NS resolution is retried shallow before giving up.
		auth = s.Spawn(ctx, hostname, KindShallowAuthNS, node)
		authResult = s.await(node, auth)
	}

	if authResult.Code == CodeLoopDetected {
		return Result{Code: CodeLoopDetected}
	}
	if authResult.Code == CodeError {
		return Result{Code: CodeError, Err: authResult.Err}
	}
	if authResult.NSRs == nil || authResult.NSRs.Empty() {
		return Result{Code: CodeWarning}
	}

	queryTarget := s.ensureQueryable(ctx, node, authResult.NSRs)
	if queryTarget.Empty() {
		return Result{Code: CodeWarning}
	}

	node.setStatus(StatusQuerying)
	blockResp, err := s.query(ctx, hostname, []wire.RType{wire.RTypeA}, queryTarget)
	node.setStatus(StatusActive)
	if err != nil {
		return Result{Code: CodeError, Err: err}
	}
	resp := blockResp.Data[wire.RTypeA]
	if resp.Status == wire.StatusTimeout {
		return Result{Code: CodeWarning}
	}
	if resp.RCode != "NOERROR" {
		return Result{Code: CodeError}
	}

	rel := relation.ParseNS(resp)
	aRecords := rel.Records(dnsval.TypeA)
	if len(aRecords) == 0 {
		return Result{Code: CodeError}
	}

	var addrs []string
	for _, rr := range aRecords {
		if dnsval.Normalize(rr.Name) == hostname {
			addrs = append(addrs, rr.Data)
		}
	}

	return Result{Code: CodeSuccess, IPs: addrs}
}

// ensureQueryable returns a block where every NSR that can be made
// queryable is: NSRs that already carry IPs pass through unchanged, and
// truly missing NSRs (no IPs, and no queryable entry for the same hostname
// elsewhere in the block) get an address resolved via a spawned shallow IP
// resolution. A shallow resolution skips the spawning entirely once the
// block already contains at least one queryable NSR, trading completeness
// for breaking out of whatever cycle forced it into shallow mode.
func (s *Scheduler) ensureQueryable(ctx context.Context, node *Resolution, block *dnsval.NSRBlock) *dnsval.NSRBlock {
	queryableHosts := map[string]bool{}
	for _, nsr := range block.NSRs() {
		if nsr.Queryable() {
			queryableHosts[nsr.Hostname] = true
		}
	}

	if node.Kind.Shallow() && len(queryableHosts) > 0 {
		return block
	}

	out := dnsval.NewNSRBlock(block.Name)
	var missing []dnsval.NSR
	for _, nsr := range block.NSRs() {
		if nsr.Queryable() || queryableHosts[nsr.Hostname] {
			out.Add(nsr)
			continue
		}
		missing = append(missing, nsr)
	}
	if len(missing) == 0 {
		return out
	}

	// The fan-out below blocks on spawned IP resolutions, so the node's
	// admission slot goes back to the scheduler for the duration, same as
	// in await.
	node.setStatus(StatusBlocked)
	s.sem.Release(1)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, nsr := range missing {
		nsr := nsr
		g.Go(func() error {
			child := s.Spawn(gctx, nsr.Hostname, node.Kind.CrossZoneIPKind(), node)
			result := child.Wait()

			mu.Lock()
			defer mu.Unlock()
			if result.Code == CodeSuccess && len(result.IPs) > 0 {
				out.Add(dnsval.NewNSR(nsr.Hostname, result.IPs))
			} else {
				out.Add(nsr)
			}
			return nil
		})
	}
	_ = g.Wait()

	_ = s.sem.Acquire(context.Background(), 1)
	node.setStatus(StatusActive)

	return out
}

func (s *Scheduler) query(ctx context.Context, name string, rtypes []wire.RType, target *dnsval.NSRBlock) (*wire.BlockResponse, error) {
	blockResp, err := s.cache.Dispatch(ctx, wire.Block{Name: name, RTypes: rtypes, NSRs: target})
	if err != nil {
		return nil, fmt.Errorf("dispatch %v %s: %w", rtypes, name, err)
	}
	return blockResp, nil
}
