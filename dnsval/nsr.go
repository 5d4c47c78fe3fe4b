package dnsval

import (
	"sort"
	"strings"
)

// NSR (nameserver record) pairs a nameserver hostname with the set of IP
// addresses known for it. Equality and hashing are by the pair of
// (lowercased hostname, sorted IP set).
type NSR struct {
	Hostname string
	IPs      []string
}

// NewNSR returns an NSR for hostname with a deduplicated copy of ips.
func NewNSR(hostname string, ips []string) NSR {
	return NSR{Hostname: Normalize(hostname), IPs: dedupStrings(ips)}
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// key identifies an NSR for deduplication purposes: lowercased hostname plus
// its sorted IP set.
func (n NSR) key() string {
	ips := append([]string(nil), n.IPs...)
	sort.Strings(ips)
	return strings.ToLower(n.Hostname) + "/" + strings.Join(ips, "_")
}

// Queryable reports whether at least one IP is known for this NSR.
func (n NSR) Queryable() bool {
	return len(n.IPs) > 0
}

// JoinMode selects how NSRBlock.Merge combines two blocks.
type JoinMode int

const (
	// JoinOuter keeps every NSR from both blocks.
	JoinOuter JoinMode = iota
	// JoinLeft keeps every NSR from self, plus those from other whose
	// hostname also appears in self.
	JoinLeft
	// JoinRight is the mirror of JoinLeft.
	JoinRight
	// JoinInner keeps only NSRs whose hostname appears in both blocks.
	JoinInner
)

// NSRBlock is the set of nameservers known to be authoritative for Name,
// deduplicated by NSR identity.
type NSRBlock struct {
	Name string

	order []string
	byKey map[string]NSR
}

// NewNSRBlock returns a block for name containing nsrs, deduplicated.
func NewNSRBlock(name string, nsrs ...NSR) *NSRBlock {
	b := &NSRBlock{Name: name, byKey: map[string]NSR{}}
	for _, n := range nsrs {
		b.Add(n)
	}
	return b
}

// Add inserts nsr into the block if an identical NSR isn't already present.
func (b *NSRBlock) Add(nsr NSR) {
	if b.byKey == nil {
		b.byKey = map[string]NSR{}
	}
	k := nsr.key()
	if _, ok := b.byKey[k]; ok {
		return
	}
	b.byKey[k] = nsr
	b.order = append(b.order, k)
}

// NSRs returns the block's NSRs in insertion order.
func (b *NSRBlock) NSRs() []NSR {
	if b == nil {
		return nil
	}
	out := make([]NSR, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.byKey[k])
	}
	return out
}

// Empty reports whether the block holds no NSRs.
func (b *NSRBlock) Empty() bool {
	return b == nil || len(b.byKey) == 0
}

// Merge returns a new block combining b and other under the given join
// mode. Outer merge is commutative and associative up to NSR equality;
// inner merge is commutative.
func (b *NSRBlock) Merge(other *NSRBlock, mode JoinMode) *NSRBlock {
	out := NewNSRBlock(b.Name)

	otherNames := hostnameSet(other)
	selfNames := hostnameSet(b)

	for _, nsr := range b.NSRs() {
		if mode == JoinOuter || mode == JoinLeft || otherNames[nsr.Hostname] {
			out.Add(nsr)
		}
	}
	for _, nsr := range other.NSRs() {
		if mode == JoinOuter || mode == JoinRight || selfNames[nsr.Hostname] {
			out.Add(nsr)
		}
	}

	return out
}

func hostnameSet(b *NSRBlock) map[string]bool {
	set := map[string]bool{}
	for _, nsr := range b.NSRs() {
		set[nsr.Hostname] = true
	}
	return set
}
