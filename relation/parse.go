package relation

import (
	"github.com/classmarkets/queue-crawler/dnsval"
	"github.com/classmarkets/queue-crawler/wire"
)

// ParseNS folds the answer, authority, and additional sections of each
// response into a single relation Map. NS records (wherever they appear: an
// authority referral, or the answer to a direct NS query) establish
// host -> nameserver relations; A records (typically glue, in additional)
// establish nameserver -> IP relations; SOA records are recorded without
// creating a relation, marking a zone's apex.
func ParseNS(resps ...wire.Response) *Map {
	m := New()

	for _, resp := range resps {
		sections := []*dnsval.RRCollection{resp.Answer, resp.Authority, resp.Additional}
		for _, s := range sections {
			if s == nil {
				continue
			}
			for _, rr := range s.Records(dnsval.TypeNS) {
				m.StoreNS(rr)
			}
			for _, rr := range s.Records(dnsval.TypeA) {
				m.StoreA(rr)
			}
			for _, rr := range s.Records(dnsval.TypeSOA) {
				m.StoreSOA(rr)
			}
		}
	}

	return m
}
