package dnstest

import "fmt"

// Zone accumulates zonefile lines for NewServer.
type Zone struct {
	lines []string
}

func NewZone() *Zone { return &Zone{} }

func (z *Zone) NS(owner, target string) *Zone {
	z.lines = append(z.lines, fmt.Sprintf("%s 3600 IN NS %s", owner, target))
	return z
}

func (z *Zone) A(owner, ip string) *Zone {
	z.lines = append(z.lines, fmt.Sprintf("%s 3600 IN A %s", owner, ip))
	return z
}

func (z *Zone) SOA(owner, mname, rname string) *Zone {
	z.lines = append(z.lines, fmt.Sprintf("%s 3600 IN SOA %s %s 1 3600 600 604800 3600", owner, mname, rname))
	return z
}

func (z *Zone) String() string {
	out := ""
	for _, l := range z.lines {
		out += l + "\n"
	}
	return out
}
