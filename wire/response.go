package wire

import (
	"github.com/classmarkets/queue-crawler/dnsval"
)

// Status reports the outcome of a single wire exchange.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusTimeout Status = "TIMEOUT"
)

// Response is a normalized DNS response: the question that was asked, the
// server that answered (or was attempted), and the three RRCollections, all
// normalized (names lowercased with a trailing dot).
type Response struct {
	Query Query

	Status     Status
	ServerAddr string
	RCode      string
	Flags      []string

	Answer     *dnsval.RRCollection
	Authority  *dnsval.RRCollection
	Additional *dnsval.RRCollection
}

// Authoritative reports whether the responding server set the AA flag.
func (r Response) Authoritative() bool {
	for _, f := range r.Flags {
		if f == "aa" {
			return true
		}
	}
	return false
}

// Empty reports whether the response carries no records in any section.
func (r Response) Empty() bool {
	sections := []*dnsval.RRCollection{r.Answer, r.Authority, r.Additional}
	for _, s := range sections {
		if s == nil {
			continue
		}
		for _, t := range []dnsval.Type{dnsval.TypeA, dnsval.TypeNS, dnsval.TypeSOA} {
			if len(s.Records(t)) > 0 {
				return false
			}
		}
	}
	return true
}
