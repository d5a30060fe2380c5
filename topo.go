package netxp

// topo.go builds a Topology from a TopoDesc.  Nodes and links are created
// once, handed to the network stack, and are not changed afterward.  The
// address plan is assigned here: every link is one address group, groups
// are numbered in link creation order, and the endpoints on a link take
// host numbers in the order the link lists them.

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Node is one simulated host or router
type Node struct {
	ID     int
	Name   string
	Endpts []*Endpoint // one per attached link, in link creation order
	Flows  []FlowID    // flows sourced at this node, in attach order

	nxtConnID int // connection id given to the next flow sourced here
}

// Link joins two nodes (p2p) or several (csma, wifi).  DataRate is bits
// per second and Delay seconds.
type Link struct {
	ID        int
	Name      string
	Media     string
	DataRate  float64
	Delay     float64
	ErrorRate float64
	MTU       int
	Prefix    netip.Prefix
	Endpts    []*Endpoint

	handle LinkHandle
}

// Shared is true when all the link's endpoints contend for one channel
func (lnk *Link) Shared() bool {
	return lnk.Media != "p2p"
}

// Handle returns the identity the network stack gave the link
func (lnk *Link) Handle() LinkHandle {
	return lnk.handle
}

// Endpoint is a node's attachment to a link, with the address it holds there
type Endpoint struct {
	Node *Node
	Link *Link
	Addr netip.Addr

	handle EndpointHandle
}

// Handle returns the identity the network stack gave the endpoint
func (ep *Endpoint) Handle() EndpointHandle {
	return ep.handle
}

// Topology is the product of BuildTopology
type Topology struct {
	Name  string
	Nodes []*Node
	Links []*Link
}

// BuildTopology validates desc, creates its nodes and links, assigns the
// address plan, and registers every link and endpoint with stack.  Building
// produces no traffic.
func BuildTopology(desc *TopoDesc, stack NetworkStack) (*Topology, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil topology description", ErrTopology)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	base, err := addressBase(desc.AddressBase)
	if err != nil {
		return nil, err
	}
	if len(desc.Links) > 255 {
		return nil, fmt.Errorf("%w: %d links exceed the 255 address groups of base %s", ErrTopology, len(desc.Links), desc.AddressBase)
	}

	topo := new(Topology)
	topo.Name = desc.Name
	topo.Nodes = make([]*Node, desc.Nodes)
	topo.Links = make([]*Link, 0, len(desc.Links))
	for idx := 0; idx < desc.Nodes; idx++ {
		topo.Nodes[idx] = &Node{ID: idx, Name: desc.NodeName(idx), Endpts: make([]*Endpoint, 0), Flows: make([]FlowID, 0)}
	}

	for idx, ld := range desc.Links {
		if len(ld.Endpts) > 254 {
			return nil, fmt.Errorf("%w: %s has %d endpoints, a /24 holds 254", ErrTopology, ld.Name, len(ld.Endpts))
		}
		lnk := &Link{ID: idx, Name: ld.Name, Media: ld.Media, DataRate: ld.DataRate, Delay: ld.Delay,
			ErrorRate: ld.ErrorRate, MTU: ld.MTU}
		if lnk.MTU == 0 {
			lnk.MTU = DefaultMTU
		}
		if len(lnk.Name) == 0 {
			lnk.Name = fmt.Sprintf("%s%d", ld.Media, idx)
		}

		// group idx gets <base>.<idx+1>.0/24
		grp := [4]byte{base[0], base[1], byte(idx + 1), 0}
		lnk.Prefix = netip.PrefixFrom(netip.AddrFrom4(grp), 24)

		lnk.Endpts = make([]*Endpoint, len(ld.Endpts))
		for jdx, nodeIdx := range ld.Endpts {
			host := grp
			host[3] = byte(jdx + 1)
			lnk.Endpts[jdx] = &Endpoint{Node: topo.Nodes[nodeIdx], Link: lnk, Addr: netip.AddrFrom4(host)}
		}

		lnk.handle, err = stack.CreateLink(lnk)
		if err != nil {
			return nil, err
		}
		for _, ep := range lnk.Endpts {
			ep.handle, err = stack.CreateEndpoint(ep.Node, lnk)
			if err != nil {
				return nil, err
			}
			ep.Node.Endpts = append(ep.Node.Endpts, ep)
		}
		topo.Links = append(topo.Links, lnk)
	}

	return topo, nil
}

// addressBase returns the first two octets of an IPv4 base address
func addressBase(base string) ([2]byte, error) {
	if len(base) == 0 {
		base = DefaultAddressBase
	}
	addr, err := netip.ParseAddr(base)
	if err != nil || !addr.Is4() {
		return [2]byte{}, fmt.Errorf("%w: address base %q is not an IPv4 address", ErrTopology, base)
	}
	a4 := addr.As4()
	return [2]byte{a4[0], a4[1]}, nil
}

// NodeByName returns the node with the given name
func (topo *Topology) NodeByName(name string) (*Node, bool) {
	for _, node := range topo.Nodes {
		if node.Name == name {
			return node, true
		}
	}
	return nil, false
}

// Addr returns the first address held by the node, the one flows sent to it are addressed to
func (node *Node) Addr() netip.Addr {
	if len(node.Endpts) == 0 {
		return netip.Addr{}
	}
	return node.Endpts[0].Addr
}

// AddrOn returns the address the node holds on the link, if it is attached there
func (node *Node) AddrOn(lnk *Link) (netip.Addr, bool) {
	for _, ep := range node.Endpts {
		if ep.Link == lnk {
			return ep.Addr, true
		}
	}
	return netip.Addr{}, false
}

// AddressPlan lists every assigned address as "<node>@<link> <addr>/<bits>",
// grouped by link in creation order
func (topo *Topology) AddressPlan() []string {
	plan := make([]string, 0)
	for _, lnk := range topo.Links {
		for _, ep := range lnk.Endpts {
			plan = append(plan, ep.Node.Name+"@"+lnk.Name+" "+ep.Addr.String()+"/"+strconv.Itoa(lnk.Prefix.Bits()))
		}
	}
	return plan
}

// String gives a one-line summary of the topology
func (topo *Topology) String() string {
	media := make([]string, 0, len(topo.Links))
	for _, lnk := range topo.Links {
		media = append(media, lnk.Name)
	}
	return fmt.Sprintf("%s: %d nodes, links [%s]", topo.Name, len(topo.Nodes), strings.Join(media, ","))
}
