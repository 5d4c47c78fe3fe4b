package querycache

import (
	"context"
	"testing"

	"github.com/classmarkets/queue-crawler/dnsval"
	"github.com/classmarkets/queue-crawler/internal/dnstest"
	"github.com/classmarkets/queue-crawler/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_dispatchDedupesIdenticalQueries(t *testing.T) {
	zone := dnstest.NewZone().
		NS("example.com.", "ns1.example.com.").
		A("ns1.example.com.", "192.0.2.1")
	srv := dnstest.NewServer(t, zone.String())

	resolver := &wire.Resolver{}
	qc := NewQueryCache(resolver, 4)

	nsrs := dnsval.NewNSRBlock("example.com.", dnsval.NewNSR("ns1.example.com.", []string{srv.Addr}))
	block := wire.Block{Name: "example.com.", RTypes: []wire.RType{wire.RTypeNS}, NSRs: nsrs}

	resp1, err := qc.Dispatch(context.Background(), block)
	require.NoError(t, err)
	resp2, err := qc.Dispatch(context.Background(), block)
	require.NoError(t, err)

	assert.Same(t, resp1, resp2)
	assert.Equal(t, wire.StatusSuccess, resp1.Data[wire.RTypeNS].Status)
}
