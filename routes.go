package netxp

// routes.go provides shortest path routes through a built Topology

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach is to convert the Topology into the data structures used by
// a graph package that has built-in path discovery algorithms.  Weighting each edge
// by 1, a shortest path minimizes the number of hops, which is what static global
// routing computes.  Nodes sharing a csma or wifi medium are joined pairwise.
//
//   The Dijkstra algorithm computes a tree of shortest paths from a named node,
// so to find the shortest path from src to dst we either compute such a tree rooted in
// src, or look up a cached tree rooted in src, or failing that a cached tree rooted in
// dst whose path, by symmetry, is the reverse of what we want.

// routeStep is one hop of a route: the link crossed and the node reached
type routeStep struct {
	lnk    *Link
	nodeID int
}

type rtEndpts struct {
	srcID, dstID int
}

// routeTable holds the graph of one topology and the routes computed over it
type routeTable struct {
	connGraph *simple.WeightedUndirectedGraph
	gNodes    map[int]simple.Node

	// linkBetween[{a,b}] is the first link created joining a and b
	linkBetween map[rtEndpts]*Link

	// cachedSP saves the result of computing shortest-path trees, keyed by root node id
	cachedSP map[int]path.Shortest

	rtCache map[rtEndpts][]routeStep
}

// createRouteTable is a constructor
func createRouteTable() *routeTable {
	rt := new(routeTable)
	rt.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rt.gNodes = make(map[int]simple.Node)
	rt.linkBetween = make(map[rtEndpts]*Link)
	rt.cachedSP = make(map[int]path.Shortest)
	rt.rtCache = make(map[rtEndpts][]routeStep)
	return rt
}

// gNode returns the graph node representing the node with the given id, adding it if needed
func (rt *routeTable) gNode(nodeID int) simple.Node {
	gn, present := rt.gNodes[nodeID]
	if !present {
		gn = simple.Node(nodeID)
		rt.gNodes[nodeID] = gn
		rt.connGraph.AddNode(gn)
	}
	return gn
}

// addLink joins every pair of nodes attached to lnk.  Adding a link
// invalidates the routes already computed.
func (rt *routeTable) addLink(lnk *Link) {
	for idx, epA := range lnk.Endpts {
		for _, epB := range lnk.Endpts[idx+1:] {
			idA, idB := epA.Node.ID, epB.Node.ID
			if _, present := rt.linkBetween[rtEndpts{srcID: idA, dstID: idB}]; !present {
				rt.linkBetween[rtEndpts{srcID: idA, dstID: idB}] = lnk
				rt.linkBetween[rtEndpts{srcID: idB, dstID: idA}] = lnk
			}
			weightedEdge := simple.WeightedEdge{F: rt.gNode(idA), T: rt.gNode(idB), W: 1.0}
			rt.connGraph.SetWeightedEdge(weightedEdge)
		}
	}
	rt.cachedSP = make(map[int]path.Shortest)
	rt.rtCache = make(map[rtEndpts][]routeStep)
}

// getSPTree returns the shortest path tree rooted in from.  If the tree is found in
// the cache it is returned, if not it is computed, saved, and returned.
func (rt *routeTable) getSPTree(from int) path.Shortest {
	spTree, present := rt.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(rt.gNode(from), rt.connGraph)
	rt.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts the node ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// routeFrom returns the shortest path, as a sequence of node ids, from srcID to dstID inclusive.
// The sequence is empty if no path exists.
func (rt *routeTable) routeFrom(srcID, dstID int) []int {
	if _, present := rt.gNodes[srcID]; !present {
		return []int{}
	}
	if _, present := rt.gNodes[dstID]; !present {
		return []int{}
	}

	spTree, present := rt.cachedSP[srcID]
	if present {
		nodeSeq, _ := spTree.To(int64(dstID))
		return convertNodeSeq(nodeSeq)
	}

	// a tree rooted in the destination gives the path reversed
	spTree, present = rt.cachedSP[dstID]
	if present {
		revNodeSeq, _ := spTree.To(int64(srcID))
		revRoute := convertNodeSeq(revNodeSeq)
		route := make([]int, 0, len(revRoute))
		for idx := len(revRoute) - 1; idx > -1; idx-- {
			route = append(route, revRoute[idx])
		}
		return route
	}

	spTree = rt.getSPTree(srcID)
	nodeSeq, _ := spTree.To(int64(dstID))
	return convertNodeSeq(nodeSeq)
}

// findRoute returns the hops from srcID to dstID, each naming the link
// crossed.  Routes are cached.
func (rt *routeTable) findRoute(srcID, dstID int) ([]routeStep, error) {
	endpoints := rtEndpts{srcID: srcID, dstID: dstID}
	route, found := rt.rtCache[endpoints]
	if found {
		return route, nil
	}

	nodeSeq := rt.routeFrom(srcID, dstID)
	if len(nodeSeq) < 2 {
		return nil, fmt.Errorf("%w: no route from node %d to node %d", ErrTopology, srcID, dstID)
	}

	route = make([]routeStep, 0, len(nodeSeq)-1)
	for idx := 1; idx < len(nodeSeq); idx++ {
		lnk := rt.linkBetween[rtEndpts{srcID: nodeSeq[idx-1], dstID: nodeSeq[idx]}]
		route = append(route, routeStep{lnk: lnk, nodeID: nodeSeq[idx]})
	}
	rt.rtCache[endpoints] = route
	return route, nil
}

// showRoute returns a string that lists the names of the nodes and links on a route
func showRoute(topo *Topology, srcID int, route []routeStep) string {
	seq := []string{topo.Nodes[srcID].Name}
	for _, step := range route {
		seq = append(seq, step.lnk.Name, topo.Nodes[step.nodeID].Name)
	}
	return strings.Join(seq, ",")
}
