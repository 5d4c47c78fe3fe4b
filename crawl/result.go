package crawl

import "github.com/classmarkets/queue-crawler/dnsval"

// ResponseCode classifies how a resolution finished.
type ResponseCode string

const (
	// CodeSuccess means the resolution produced data: a non-empty NSR block
	// for an AuthNS kind (its NSRs need not all carry IPs), or a NOERROR
	// answer with A records for an IP kind.
	CodeSuccess ResponseCode = "SUCCESS"

	// CodeError means an authoritative server answered with a non-NOERROR
	// rcode (NXDOMAIN, SERVFAIL, ...), an A answer carried no A records, or
	// a structural error (e.g. an unresolvable dependency) occurred.
	CodeError ResponseCode = "ERROR"

	// CodeWarning means the resolution completed but degraded: every
	// candidate nameserver timed out, or there was no nameserver to query
	// (an empty or unqueryable target block).
	CodeWarning ResponseCode = "WARNING"

	// CodeLoopDetected means resolving this identity would require
	// resolving an ancestor of itself; the scheduler refused to spawn it.
	CodeLoopDetected ResponseCode = "LOOP_DETECTED"
)

// Result is what a finished Resolution hands back to whoever spawned it or
// is waiting on it. An AuthNS-kind resolution populates NSRs, an IP-kind
// resolution populates IPs; only one is ever set for a given Kind.
type Result struct {
	Code ResponseCode
	NSRs *dnsval.NSRBlock
	IPs  []string
	Err  error
}
