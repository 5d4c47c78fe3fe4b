package dnsval

// RootHints is the seed NSRBlock for the root zone, used when no prior
// delegation is known. An implementation MAY embed the full 13-server hint
// list; this one doesn't need to, since a single reachable root server is
// enough to bootstrap the rest of the hierarchy.
func RootHints() *NSRBlock {
	return NewNSRBlock(Root, NewNSR("a.root-servers.net.", []string{"198.41.0.4"}))
}
