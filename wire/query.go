package wire

import (
	"sort"
	"strings"

	"github.com/classmarkets/queue-crawler/dnsval"
)

// RType is a query record type: "NS" or "A".
type RType string

const (
	RTypeNS RType = "NS"
	RTypeA  RType = "A"
)

// Query is a single question sent to a single nameserver IP.
type Query struct {
	Name  string
	RType RType
	NSRIP string
}

// ID uniquely identifies this query for the purposes of the query cache:
// "q/<rtype>/<nsr_ip>/<name>".
func (q Query) ID() string {
	return "q/" + string(q.RType) + "/" + q.NSRIP + "/" + q.Name
}

// Block is a set of queries that share a question name and record types,
// fanned out across every IP in an NSRBlock.
type Block struct {
	Name   string
	RTypes []RType
	NSRs   *dnsval.NSRBlock
}

// ID uniquely identifies this block for the purposes of the query cache: the
// sorted join of its constituent Query ids.
func (b Block) ID() string {
	ids := make([]string, 0)
	for _, q := range b.Queries() {
		ids = append(ids, q.ID())
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// Queries expands the block into the individual (name, rtype, ip) queries
// it represents.
func (b Block) Queries() []Query {
	var out []Query
	for _, nsr := range b.NSRs.NSRs() {
		for _, ip := range nsr.IPs {
			for _, rtype := range b.RTypes {
				out = append(out, Query{Name: b.Name, RType: rtype, NSRIP: ip})
			}
		}
	}
	return out
}

// BlockResponse aggregates the per-rtype responses to one dispatched Block.
type BlockResponse struct {
	Block Block
	Data  map[RType]Response
}
