package wire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classmarkets/queue-crawler/dnsval"
	"github.com/classmarkets/queue-crawler/internal/dnstest"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Query_answersNS(t *testing.T) {
	zone := dnstest.NewZone().
		NS("example.com.", "ns1.example.com.").
		A("ns1.example.com.", "192.0.2.1")
	srv := dnstest.NewServer(t, zone.String())

	r := &Resolver{}
	resp := r.Query(context.Background(), Query{Name: "example.com.", RType: RTypeNS, NSRIP: srv.Addr})

	require.Equal(t, StatusSuccess, resp.Status)
	assert.True(t, resp.Authoritative())
	recs := resp.Answer.Records(dnsval.TypeNS)
	require.Len(t, recs, 1)
	assert.Equal(t, "ns1.example.com.", recs[0].Data)
}

func TestResolver_Query_retriesThenSyntheticTimeout(t *testing.T) {
	attempts := 0
	r := &Resolver{
		BackoffUnit: time.Millisecond,
		dial: func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
			attempts++
			return nil, 0, errors.New("i/o timeout")
		},
	}

	resp := r.Query(context.Background(), Query{Name: "example.com.", RType: RTypeNS, NSRIP: "192.0.2.53"})

	assert.Equal(t, 1+DefaultRetries, attempts)
	assert.Equal(t, StatusTimeout, resp.Status)
	assert.True(t, resp.Empty())
}

func TestResolver_Query_recursionDesiredCleared(t *testing.T) {
	var sent *dns.Msg
	r := &Resolver{
		dial: func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
			sent = m
			reply := new(dns.Msg)
			reply.SetReply(m)
			return reply, 0, nil
		},
	}

	_ = r.Query(context.Background(), Query{Name: "example.com.", RType: RTypeA, NSRIP: "192.0.2.53"})

	require.NotNil(t, sent)
	assert.False(t, sent.RecursionDesired)
}

func TestResolver_Query_nxdomain(t *testing.T) {
	zone := dnstest.NewZone().NS("example.com.", "ns1.example.com.")
	srv := dnstest.NewServer(t, zone.String())

	r := &Resolver{}
	resp := r.Query(context.Background(), Query{Name: "nope.example.com.", RType: RTypeA, NSRIP: srv.Addr})

	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "NXDOMAIN", resp.RCode)
}
