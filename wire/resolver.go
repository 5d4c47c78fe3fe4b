package wire

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/classmarkets/queue-crawler/dnsval"
	"github.com/miekg/dns"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the per-attempt UDP round-trip timeout used when
// Resolver.Timeout is zero.
const DefaultTimeout = 2 * time.Second

// DefaultRetries is the number of retries attempted after an initial
// timeout, with linear 2*attempt second backoff between attempts.
const DefaultRetries = 3

// Resolver issues single non-recursive UDP DNS queries. Unlike a recursive
// resolver, it never follows a referral itself: the caller always supplies
// a concrete destination IP, and following referrals is the scheduler's
// job, not the wire layer's.
type Resolver struct {
	// Timeout is the round-trip timeout for a single UDP attempt. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first timeout.
	// Zero means DefaultRetries.
	Retries int

	// BackoffUnit scales the linear 2*attempt backoff between retries. Zero
	// means one second; tests shrink it to keep retry scenarios fast.
	BackoffUnit time.Duration

	// Limiter rate-limits outbound queries across all goroutines sharing
	// this Resolver. Nil disables rate limiting.
	Limiter *rate.Limiter

	// Port is the UDP port appended to NSRIP when it carries none. Zero
	// means 53.
	Port int

	Logger *slog.Logger

	// dial lets tests substitute the exchange function.
	dial func(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// NewResolver returns a Resolver with the given outbound queries-per-second
// limit. A non-positive qps disables rate limiting.
func NewResolver(qps float64) *Resolver {
	r := &Resolver{}
	if qps > 0 {
		r.Limiter = rate.NewLimiter(rate.Limit(qps), max(1, int(qps)))
	}
	return r
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Resolver) retries() int {
	if r.Retries <= 0 {
		return DefaultRetries
	}
	return r.Retries
}

func (r *Resolver) backoffUnit() time.Duration {
	if r.BackoffUnit <= 0 {
		return time.Second
	}
	return r.BackoffUnit
}

func (r *Resolver) port() string {
	if r.Port <= 0 {
		return "53"
	}
	return strconv.Itoa(r.Port)
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Query builds a DNS query message with recursion desired cleared and sends
// it over UDP to q.NSRIP, retrying up to r.retries() times with linear
// 2*attempt second backoff. After the final timeout it returns a synthetic
// empty-message response with Status = TIMEOUT.
func (r *Resolver) Query(ctx context.Context, q Query) Response {
	addr := q.NSRIP
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, r.port())
	}

	m := new(dns.Msg)
	m.SetQuestion(dnsval.Normalize(q.Name), rtypeToQtype(q.RType))
	m.RecursionDesired = false

	exchange := r.dial
	if exchange == nil {
		exchange = r.exchange
	}

	var resp *dns.Msg
	var rtt time.Duration
	var err error

	for attempt := 0; attempt <= r.retries(); attempt++ {
		if attempt > 0 {
			backoff := time.Duration(2*attempt) * r.backoffUnit()
			r.logger().Debug("dns query timed out, retrying", "query", q, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return timeoutResponse(q, addr)
			}
		}

		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return timeoutResponse(q, addr)
			}
		}

		resp, rtt, err = exchange(ctx, m, addr)
		if err == nil {
			break
		}
		r.logger().Debug("dns exchange error", "query", q, "server", addr, "err", err, "rtt", rtt)
	}

	if err != nil || resp == nil {
		return timeoutResponse(q, addr)
	}

	return Response{
		Query:      q,
		Status:     StatusSuccess,
		ServerAddr: addr,
		RCode:      dns.RcodeToString[resp.Rcode],
		Flags:      flagStrings(resp),
		Answer:     toRRCollection(resp.Answer),
		Authority:  toRRCollection(resp.Ns),
		Additional: toRRCollection(resp.Extra),
	}
}

func (r *Resolver) exchange(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
	c := &dns.Client{Timeout: r.timeout()}
	return c.ExchangeContext(ctx, m, addr)
}

func timeoutResponse(q Query, addr string) Response {
	return Response{
		Query:      q,
		Status:     StatusTimeout,
		ServerAddr: addr,
		Answer:     dnsval.NewRRCollection(),
		Authority:  dnsval.NewRRCollection(),
		Additional: dnsval.NewRRCollection(),
	}
}

func rtypeToQtype(t RType) uint16 {
	switch t {
	case RTypeA:
		return dns.TypeA
	case RTypeNS:
		return dns.TypeNS
	default:
		return dns.TypeNone
	}
}

func flagStrings(m *dns.Msg) []string {
	var flags []string
	if m.Response {
		flags = append(flags, "qr")
	}
	if m.Authoritative {
		flags = append(flags, "aa")
	}
	if m.Truncated {
		flags = append(flags, "tc")
	}
	if m.RecursionDesired {
		flags = append(flags, "rd")
	}
	if m.RecursionAvailable {
		flags = append(flags, "ra")
	}
	return flags
}

func toRRCollection(rrs []dns.RR) *dnsval.RRCollection {
	c := dnsval.NewRRCollection()
	for _, rr := range rrs {
		switch rec := rr.(type) {
		case *dns.NS:
			c.Add(dnsval.RR{
				Name:  dnsval.Normalize(rec.Hdr.Name),
				TTL:   time.Duration(rec.Hdr.Ttl) * time.Second,
				Class: dns.ClassToString[rec.Hdr.Class],
				Type:  dnsval.TypeNS,
				Data:  dnsval.Normalize(rec.Ns),
			})
		case *dns.A:
			c.Add(dnsval.RR{
				Name:  dnsval.Normalize(rec.Hdr.Name),
				TTL:   time.Duration(rec.Hdr.Ttl) * time.Second,
				Class: dns.ClassToString[rec.Hdr.Class],
				Type:  dnsval.TypeA,
				Data:  rec.A.String(),
			})
		case *dns.SOA:
			c.Add(dnsval.RR{
				Name:  dnsval.Normalize(rec.Hdr.Name),
				TTL:   time.Duration(rec.Hdr.Ttl) * time.Second,
				Class: dns.ClassToString[rec.Hdr.Class],
				Type:  dnsval.TypeSOA,
				Data:  rec.Ns,
			})
		}
	}
	return c
}
