// Package dnstest provides small, in-process authoritative DNS test
// servers backed by real miekg/dns zonefile text, so crawl scenarios can
// be exercised end to end without reaching the network.
package dnstest

import (
	"net"
	"strings"
	"testing"

	"github.com/miekg/dns"
)

// Server is a single authoritative nameserver serving the records parsed
// from a zonefile string over UDP on an ephemeral loopback port.
type Server struct {
	Addr string // "127.0.0.1:PORT"

	// Servfail lists fully-qualified names the server answers with
	// SERVFAIL regardless of its records.
	Servfail map[string]bool

	srv     *dns.Server
	records []dns.RR
}

// NewServer starts a UDP DNS server on an ephemeral port that answers
// strictly from the RRs parsed out of zone (standard zonefile syntax, origin
// "."). It is registered with t.Cleanup to shut down automatically.
func NewServer(t *testing.T, zone string) *Server {
	t.Helper()

	rrs := mustParseZone(t, zone)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("dnstest: listen: %v", err)
	}

	s := &Server{
		Addr:     pc.LocalAddr().String(),
		Servfail: map[string]bool{},
		records:  rrs,
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handle)

	s.srv = &dns.Server{PacketConn: pc, Handler: mux}

	ready := make(chan struct{})
	s.srv.NotifyStartedFunc = func() { close(ready) }

	go func() {
		_ = s.srv.ActivateAndServe()
	}()
	<-ready

	t.Cleanup(func() {
		_ = s.srv.Shutdown()
	})

	return s
}

func (s *Server) handle(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	if len(req.Question) != 1 {
		m.Rcode = dns.RcodeFormatError
		_ = w.WriteMsg(m)
		return
	}
	q := req.Question[0]

	if s.Servfail[strings.ToLower(q.Name)] {
		m.Rcode = dns.RcodeServerFailure
		_ = w.WriteMsg(m)
		return
	}

	var answer, ns, extra []dns.RR
	found := false
	exists := false
	qname := strings.ToLower(q.Name)
	for _, rr := range s.records {
		h := rr.Header()
		name := strings.ToLower(h.Name)
		if name == qname {
			found = true
			if h.Rrtype == q.Qtype {
				answer = append(answer, rr)
			}
			continue
		}
		if qname == "." || strings.HasSuffix(name, "."+qname) {
			// A record exists below the query name, so the name itself is
			// an empty non-terminal, not NXDOMAIN.
			exists = true
		}
	}

	// This server hosts every zone in the test hierarchy itself (root, TLD,
	// and leaf alike), so a name with no records at or below it is genuinely
	// absent everywhere, not merely delegated further down.
	switch {
	case !found && !exists:
		m.Rcode = dns.RcodeNameError
	case len(answer) == 0:
		// No data at this name for the asked type. If the owner carries an
		// NS set, surface it as a referral so delegation-shaped fixtures
		// (root hints, TLD cuts) behave naturally; otherwise answer the way
		// a real authoritative server marks a no-data name, with the
		// enclosing zone's SOA in the authority section.
		for _, rr := range s.records {
			h := rr.Header()
			if strings.EqualFold(h.Name, q.Name) && h.Rrtype == dns.TypeNS {
				ns = append(ns, rr)
			}
		}
		if len(ns) == 0 {
			if soa := s.closestSOA(qname); soa != nil {
				ns = append(ns, soa)
			}
		}
	}

	extra = s.glueFor(answer, ns)

	m.Answer = answer
	m.Ns = ns
	m.Extra = extra

	_ = w.WriteMsg(m)
}

// closestSOA returns the SOA record of the nearest enclosing zone of name,
// walking label by label up to the root.
func (s *Server) closestSOA(name string) dns.RR {
	for {
		for _, rr := range s.records {
			if rr.Header().Rrtype == dns.TypeSOA && strings.EqualFold(rr.Header().Name, name) {
				return rr
			}
		}
		if name == "." {
			return nil
		}
		if i := strings.Index(name, "."); i >= 0 && i+1 < len(name) {
			name = name[i+1:]
		} else {
			name = "."
		}
	}
}

// glueFor returns the A records, among the server's records, for every NS
// target named in nsSections -- i.e. the usual glue a real authoritative
// server attaches so a resolver doesn't need a separate query to find a
// delegated or co-located nameserver's address.
func (s *Server) glueFor(nsSections ...[]dns.RR) []dns.RR {
	targets := map[string]bool{}
	for _, section := range nsSections {
		for _, rr := range section {
			if ns, ok := rr.(*dns.NS); ok {
				targets[strings.ToLower(ns.Ns)] = true
			}
		}
	}

	var out []dns.RR
	for _, rr := range s.records {
		if a, ok := rr.(*dns.A); ok && targets[strings.ToLower(a.Hdr.Name)] {
			out = append(out, rr)
		}
	}
	return out
}

func mustParseZone(t *testing.T, zone string) []dns.RR {
	t.Helper()

	var rrs []dns.RR
	zp := dns.NewZoneParser(strings.NewReader(zone), ".", "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		rrs = append(rrs, rr)
	}
	if err := zp.Err(); err != nil {
		t.Fatalf("dnstest: parse zone: %v", err)
	}
	return rrs
}
