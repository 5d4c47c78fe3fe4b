package dnsval

import (
	"sort"
	"strings"
	"time"
)

// Type enumerates the resource record types this crawler cares about. Other
// rtypes may still be carried through an RRCollection, but only these are
// ever queried for or merged into a relation map.
type Type string

const (
	TypeA   Type = "a"
	TypeNS  Type = "ns"
	TypeSOA Type = "soa"
)

// RR is a normalized resource record: name, ttl, class, type, and rdata.
// For "a" and "ns" records, Name is normalized; for "ns" records, Data (the
// delegation target) is also normalized.
type RR struct {
	Name  string
	TTL   time.Duration
	Class string
	Type  Type
	Data  string
}

func (rr RR) key() string {
	return strings.Join([]string{rr.Name, string(rr.Type), rr.Data}, "\x00")
}

// RRCollection maps rtype to a deduplicated set of records of that type.
// Insertion order is irrelevant; duplicates are suppressed by value equality
// of (name, type, data).
type RRCollection struct {
	byType map[Type]map[string]RR
}

// NewRRCollection returns an empty RRCollection.
func NewRRCollection() *RRCollection {
	return &RRCollection{byType: map[Type]map[string]RR{}}
}

// Add inserts rr, deduplicating against any existing record with the same
// (name, type, data).
func (c *RRCollection) Add(rr RR) {
	if c.byType == nil {
		c.byType = map[Type]map[string]RR{}
	}
	set, ok := c.byType[rr.Type]
	if !ok {
		set = map[string]RR{}
		c.byType[rr.Type] = set
	}
	set[rr.key()] = rr
}

// Records returns every record of the given rtype, in a stable (sorted by
// key) order.
func (c *RRCollection) Records(t Type) []RR {
	set := c.byType[t]
	if len(set) == 0 {
		return nil
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rrs := make([]RR, 0, len(keys))
	for _, k := range keys {
		rrs = append(rrs, set[k])
	}
	return rrs
}
