package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/classmarkets/queue-crawler/dnsval"
	"golang.org/x/sync/errgroup"
)

// HostResult is the outcome of crawling a single input hostname: the
// combined parent+child-side authoritative NS set (with resolved nameserver
// IPs), and optionally the target hostname's own A records.
type HostResult struct {
	Hostname  string
	NS        Result
	TargetIPs Result
}

// Manager partitions an input hostname list into crawl groups and drives
// the scheduler over each group in turn, reporting progress as resolutions
// land.
type Manager struct {
	scheduler *Scheduler
	log       *slog.Logger

	// GroupSize bounds how many root hostnames are crawled concurrently in
	// a single wave. Non-positive means one wave containing every hostname.
	GroupSize int
}

// NewManager returns a Manager driving scheduler.
func NewManager(scheduler *Scheduler, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{scheduler: scheduler, log: log}
}

// Crawl resolves every hostname in hosts to its combined authoritative NS
// set, processing hosts in groups of m.GroupSize and logging per-host
// progress (with the running total) as each host finishes.
func (m *Manager) Crawl(ctx context.Context, hosts []string) ([]HostResult, error) {
	groups := m.partition(hosts)

	var all []HostResult
	var completed atomic.Int64
	total := len(hosts)

	for _, group := range groups {
		results, err := m.crawlGroup(ctx, group, &completed, total)
		if err != nil {
			return all, err
		}
		all = append(all, results...)
	}

	return all, nil
}

func (m *Manager) crawlGroup(ctx context.Context, hosts []string, completed *atomic.Int64, total int) ([]HostResult, error) {
	results := make([]HostResult, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			// An IP resolution's own first step spawns the comprehensive
			// AuthNS resolution for the same hostname, so spawning it here
			// too is a coalesced no-op that just gives the manager a handle
			// on the NS-set half of the output.
			ipNode := m.scheduler.Spawn(gctx, host, KindIP, nil)
			nsNode := m.scheduler.Spawn(gctx, host, KindAuthNS, nil)

			ipResult := ipNode.Wait()
			nsResult := nsNode.Wait()

			results[i] = HostResult{
				Hostname:  dnsval.Normalize(host),
				NS:        nsResult,
				TargetIPs: ipResult,
			}
			done := completed.Add(1)
			m.log.Info("finished host", "hostname", host, "ns_code", nsResult.Code, "ip_code", ipResult.Code, "completed", done, "total", total)
			fmt.Printf("Finished %s\n", host)
			fmt.Printf("%d/%d resolutions completed\n", done, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

func (m *Manager) partition(hosts []string) [][]string {
	if m.GroupSize <= 0 || m.GroupSize >= len(hosts) {
		return [][]string{hosts}
	}

	var groups [][]string
	for i := 0; i < len(hosts); i += m.GroupSize {
		end := i + m.GroupSize
		if end > len(hosts) {
			end = len(hosts)
		}
		groups = append(groups, hosts[i:end])
	}
	return groups
}
