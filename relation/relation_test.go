package relation

import (
	"testing"
	"time"

	"github.com/classmarkets/queue-crawler/dnsval"
	"github.com/classmarkets/queue-crawler/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rr(name string, typ dnsval.Type, data string) dnsval.RR {
	return dnsval.RR{Name: dnsval.Normalize(name), TTL: time.Minute, Class: "IN", Type: typ, Data: data}
}

func TestParseNS_referralWithGlue(t *testing.T) {
	resp := wire.Response{
		Authority: collection(
			rr("example.com.", dnsval.TypeNS, "ns1.example.com."),
			rr("example.com.", dnsval.TypeNS, "ns2.example.com."),
		),
		Additional: collection(
			rr("ns1.example.com.", dnsval.TypeA, "192.0.2.1"),
		),
	}

	m := ParseNS(resp)

	require.Equal(t, []string{"example.com."}, m.HostsWithNameservers())

	block := m.GetNSRBlock("example.com.")
	require.NotNil(t, block)
	assert.Len(t, block.NSRs(), 2)

	for _, nsr := range block.NSRs() {
		if nsr.Hostname == "ns1.example.com." {
			assert.Equal(t, []string{"192.0.2.1"}, nsr.IPs)
		} else {
			assert.Empty(t, nsr.IPs)
		}
	}
}

func TestParseNS_soaNoRelation(t *testing.T) {
	resp := wire.Response{
		Authority: collection(rr("example.com.", dnsval.TypeSOA, "ns1.example.com.")),
	}

	m := ParseNS(resp)

	assert.Empty(t, m.HostsWithNameservers())
	assert.Len(t, m.Records(dnsval.TypeSOA), 1)
}

func collection(rrs ...dnsval.RR) *dnsval.RRCollection {
	c := dnsval.NewRRCollection()
	for _, r := range rrs {
		c.Add(r)
	}
	return c
}
