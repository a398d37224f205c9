package molecule

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// toGraph builds an undirected gonum graph with one node per atom.
func (m *Molecule) toGraph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for i := range m.Atoms {
		g.AddNode(simple.Node(int64(i)))
	}
	for _, b := range m.Bonds {
		g.SetEdge(g.NewEdge(simple.Node(int64(b.Begin)), simple.Node(int64(b.End))))
	}
	return g
}

// perceiveRings marks ring atoms and bonds and records, for every ring bond,
// the smallest ring passing through it. A bond is in a ring exactly when its
// end atoms stay connected after the bond is removed; the shortest such path
// closed by the bond is its smallest ring.
func (m *Molecule) perceiveRings() {
	for i := range m.Atoms {
		m.Atoms[i].InRing = false
	}
	m.ringBonds = make([][]int, len(m.Bonds))
	m.rings = nil
	if len(m.Bonds) == 0 {
		return
	}

	g := m.toGraph()
	seen := map[string]bool{}
	for bi := range m.Bonds {
		b := &m.Bonds[bi]
		b.InRing = false
		u, v := int64(b.Begin), int64(b.End)

		g.RemoveEdge(u, v)
		shortest := path.DijkstraFrom(simple.Node(u), g)
		nodes, _ := shortest.To(v)
		g.SetEdge(g.NewEdge(simple.Node(u), simple.Node(v)))

		if len(nodes) < 2 {
			continue
		}
		ring := nodeIndices(nodes)
		b.InRing = true
		m.ringBonds[bi] = ring
		for _, a := range ring {
			m.Atoms[a].InRing = true
		}
		if key := ringKey(ring); !seen[key] {
			seen[key] = true
			m.rings = append(m.rings, ring)
		}
	}
	sort.SliceStable(m.rings, func(i, j int) bool { return len(m.rings[i]) < len(m.rings[j]) })
}

func nodeIndices(nodes []graph.Node) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = int(n.ID())
	}
	return out
}

func ringKey(ring []int) string {
	s := append([]int(nil), ring...)
	sort.Ints(s)
	key := make([]byte, 0, len(s)*3)
	for _, a := range s {
		key = append(key, byte(a>>16), byte(a>>8), byte(a))
	}
	return string(key)
}

// SmallestRingSize returns the size of the smallest ring containing bond bi,
// or 0 when the bond is acyclic. Valid after Sanitize.
func (m *Molecule) SmallestRingSize(bi int) int {
	if bi < 0 || bi >= len(m.ringBonds) {
		return 0
	}
	return len(m.ringBonds[bi])
}

// ringBondIndices returns the bonds closing ring, in ring order.
func (m *Molecule) ringBondIndices(ring []int) []int {
	out := make([]int, 0, len(ring))
	for k := range ring {
		bi := m.BondBetween(ring[k], ring[(k+1)%len(ring)])
		if bi >= 0 {
			out = append(out, bi)
		}
	}
	return out
}

// NumRings returns the number of distinct smallest rings.
func (m *Molecule) NumRings() int { return len(m.rings) }
