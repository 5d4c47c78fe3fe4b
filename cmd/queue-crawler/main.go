// Command queue-crawler reads a list of hostnames and crawls the DNS
// hierarchy for each one's combined parent- and child-side authoritative
// nameserver set, issuing only non-recursive queries straight to
// authoritative servers.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/classmarkets/queue-crawler/crawl"
	"github.com/classmarkets/queue-crawler/querycache"
	"github.com/classmarkets/queue-crawler/wire"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "queue-crawler:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("queue-crawler", pflag.ContinueOnError)
	domainList := flags.String("domain-list", "", "path to a file of newline-separated hostnames to crawl")
	crawlGroupSize := flags.Int("crawl-group-size", -1, "number of hostnames crawled concurrently per wave; -1 means one wave containing every hostname")
	maxActiveResolutions := flags.Int64("max-active-resolutions", 100, "ceiling on concurrently ACTIVE/QUERYING resolutions")
	verbose := flags.Bool("verbose", false, "emit debug-level log records")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *domainList == "" {
		return fmt.Errorf("--domain-list is required")
	}

	log := newLogger(*verbose)

	hosts, err := loadDomainList(*domainList)
	if err != nil {
		return fmt.Errorf("load domain list: %w", err)
	}
	if len(hosts) == 0 {
		log.Warn("domain list is empty, nothing to crawl")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// defaultOutboundQPS bounds how fast the wire resolver fires UDP
	// queries at authoritative servers, independent of how many
	// resolutions the scheduler admits concurrently.
	const defaultOutboundQPS = 200
	resolver := wire.NewResolver(defaultOutboundQPS)
	resolver.Logger = log
	cache := querycache.NewQueryCache(resolver, 0)
	scheduler := crawl.NewScheduler(cache, *maxActiveResolutions, log)
	manager := crawl.NewManager(scheduler, log)
	manager.GroupSize = *crawlGroupSize

	results, err := manager.Crawl(ctx, hosts)
	scheduler.Wait()
	if err != nil {
		return err
	}

	return summarize(results)
}

// summarize aggregates the Go errors carried on individual resolutions into
// one process exit error. Per-hostname outcomes — an NXDOMAIN'd input, a
// loop, a timed-out zone — are ordinary response codes, already reported by
// the manager, and leave the exit status at zero. Wire-level failures are
// folded into timeouts by the resolver, so the errors seen here come from a
// resolution's admission or query dispatch being cut short by cancellation.
func summarize(results []crawl.HostResult) error {
	var errs *multierror.Error
	for _, r := range results {
		if r.NS.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: ns: %w", r.Hostname, r.NS.Err))
		}
		if r.TargetIPs.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: ip: %w", r.Hostname, r.TargetIPs.Err))
		}
	}
	return errs.ErrorOrNil()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadDomainList reads one hostname per line from path, trimming
// whitespace. Blank lines are skipped.
func loadDomainList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hosts, nil
}
