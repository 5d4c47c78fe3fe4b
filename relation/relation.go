// Package relation builds the per-response relation map used by the
// resolution state machine: which hosts have known nameservers, and which
// nameserver hostnames have known A records.
package relation

import (
	"github.com/classmarkets/queue-crawler/dnsval"
)

// Map is built from one or more DNS responses. It stores every RR it was given in an
// RRCollection, and separately tracks host -> nameserver-hostname relations
// (from NS records) and nameserver-hostname -> known IPs (from A records).
type Map struct {
	records  *dnsval.RRCollection
	hostNSR  map[string]map[string]bool // host -> set of NS target hostnames
	hostIPs  map[string][]string        // NS target hostname -> known IPs
	hostSeen map[string]bool            // hostnames seen as the owner of an A record
	order    []string
}

// New returns an empty relation map.
func New() *Map {
	return &Map{
		records:  dnsval.NewRRCollection(),
		hostNSR:  map[string]map[string]bool{},
		hostIPs:  map[string][]string{},
		hostSeen: map[string]bool{},
	}
}

// StoreNS records an NS record: rr.Name is the delegated zone, rr.Data is
// the nameserver hostname.
func (m *Map) StoreNS(rr dnsval.RR) {
	m.Store(rr)

	set, ok := m.hostNSR[rr.Name]
	if !ok {
		set = map[string]bool{}
		m.hostNSR[rr.Name] = set
		m.order = append(m.order, rr.Name)
	}
	set[rr.Data] = true
}

// StoreA records an A record: rr.Name is the nameserver hostname, rr.Data is
// its IP address.
func (m *Map) StoreA(rr dnsval.RR) {
	m.Store(rr)

	if !m.hostSeen[rr.Name] {
		m.hostSeen[rr.Name] = true
	}
	for _, ip := range m.hostIPs[rr.Name] {
		if ip == rr.Data {
			return
		}
	}
	m.hostIPs[rr.Name] = append(m.hostIPs[rr.Name], rr.Data)
}

// StoreSOA records an SOA record. SOA does not create host-NS relations; its
// presence is used to detect empty non-terminals.
func (m *Map) StoreSOA(rr dnsval.RR) {
	m.Store(rr)
}

// Store records rr in the map's RRCollection without creating any relation.
func (m *Map) Store(rr dnsval.RR) {
	m.records.Add(rr)
}

// Records returns every stored record of the given rtype.
func (m *Map) Records(t dnsval.Type) []dnsval.RR {
	return m.records.Records(t)
}

// HostsWithNameservers returns every name for which at least one NS record
// was stored, in first-seen order.
func (m *Map) HostsWithNameservers() []string {
	out := make([]string, 0, len(m.order))
	out = append(out, m.order...)
	return out
}

// GetNSRBlock assembles an NSRBlock for hostname by taking each NS target
// known for hostname and attaching its known A IPs, if any. Returns nil if
// hostname has no stored NS relation.
func (m *Map) GetNSRBlock(hostname string) *dnsval.NSRBlock {
	targets, ok := m.hostNSR[hostname]
	if !ok {
		return nil
	}

	b := dnsval.NewNSRBlock(hostname)
	for target := range targets {
		b.Add(dnsval.NewNSR(target, m.hostIPs[target]))
	}
	return b
}
