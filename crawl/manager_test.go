package crawl

import (
	"context"
	"testing"

	"github.com/classmarkets/queue-crawler/internal/dnstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_crawlsInWaves(t *testing.T) {
	zone := dnstest.NewZone().
		NS(".", "a.root-servers.net.").
		A("a.root-servers.net.", "127.0.0.1").
		NS("com.", "a.gtld-servers.net.").
		A("a.gtld-servers.net.", "127.0.0.1").
		NS("example.com.", "ns1.example.com.").
		NS("x.example.com.", "ns1.example.com.").
		NS("y.example.com.", "ns1.example.com.").
		A("ns1.example.com.", "127.0.0.1").
		A("x.example.com.", "192.0.2.10").
		A("y.example.com.", "192.0.2.20")

	sched, _ := newTestScheduler(t, zone)
	m := NewManager(sched, nil)
	m.GroupSize = 1

	results, err := m.Crawl(context.Background(), []string{"x.example.com", "y.example.com"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byHost := map[string]HostResult{}
	for _, r := range results {
		byHost[r.Hostname] = r
	}

	x := byHost["x.example.com."]
	require.Equal(t, CodeSuccess, x.NS.Code)
	assert.ElementsMatch(t, []string{"ns1.example.com."}, hostnamesOf(x.NS.NSRs))
	require.Equal(t, CodeSuccess, x.TargetIPs.Code)
	assert.Equal(t, []string{"192.0.2.10"}, x.TargetIPs.IPs)

	y := byHost["y.example.com."]
	require.Equal(t, CodeSuccess, y.TargetIPs.Code)
	assert.Equal(t, []string{"192.0.2.20"}, y.TargetIPs.IPs)
}

func TestManager_partition(t *testing.T) {
	m := &Manager{GroupSize: 2}
	groups := m.partition([]string{"a", "b", "c", "d", "e"})
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a", "b"}, groups[0])
	assert.Equal(t, []string{"c", "d"}, groups[1])
	assert.Equal(t, []string{"e"}, groups[2])

	m.GroupSize = -1
	groups = m.partition([]string{"a", "b"})
	require.Len(t, groups, 1)
}
