package nj

import (
	"github.com/bits-and-blooms/bitset"

	"bitbucket.org/Davydov/genetree/tree"
)

// Group is a set of taxa which a constraint tree keeps together.
type Group struct {
	// Members are matrix rows of the group taxa.
	Members *bitset.BitSet
	// Flag is the constraint class of the group. A node realizing a
	// free group is marked Temporary.
	Flag  tree.Flag
	count uint
}

// Constraint is a preprocessed constraint tree.
type Constraint struct {
	// Scope are the matrix rows of the constraint tree leaves.
	Scope  *bitset.BitSet
	Groups []Group
	// Rooted is true if the constraint pins the root: its groups are
	// treated as clusters of a rooted tree rather than splits.
	Rooted bool
	// NMulti is the number of multifurcating nodes.
	NMulti int

	scopeCount uint
}

// Constraints is a set of preprocessed constraint trees for a list of
// taxa.
type Constraints struct {
	List []*Constraint
	n    int
}

// Rooted returns true if at least one constraint pins the root, in this
// case a rooted tree is built.
func (cs *Constraints) Rooted() bool {
	if cs == nil {
		return false
	}
	for _, c := range cs.List {
		if c.Rooted {
			return true
		}
	}
	return false
}

// Len returns the number of constraint trees.
func (cs *Constraints) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.List)
}

// Prepare converts constraint trees to taxa groups. Leaves unknown to
// names are ignored. A constraint pins the root if applyAtRoot is set,
// its root is bifurcating with taxa on both sides, and it has at most
// one multifurcating node.
//
// Every internal node of a constraint is a group, including the nodes of
// multifurcations which leave the resolution of their children free.
// A group inherits the Inherit flag of its closest flagged ancestor.
func Prepare(names []string, trees []*tree.Tree, applyAtRoot bool) *Constraints {
	cs := &Constraints{n: len(names)}
	if len(trees) == 0 {
		return cs
	}
	idx := make(map[string]int, len(names))
	for i, name := range names {
		idx[name] = i
	}
	for ti, t := range trees {
		c := prepareOne(t, idx, len(names), applyAtRoot)
		if c == nil {
			log.Warningf("Constraint %d has less than two known taxa, ignored", ti+1)
			continue
		}
		log.Infof("Constraint %d: %d taxa, %d groups, rooted=%v", ti+1, c.scopeCount, len(c.Groups), c.Rooted)
		cs.List = append(cs.List, c)
	}
	return cs
}

func prepareOne(t *tree.Tree, idx map[string]int, n int, applyAtRoot bool) *Constraint {
	order := t.PostOrder()
	members := make([]*bitset.BitSet, t.NNodes())
	unknown := 0
	c := &Constraint{}
	for _, id := range order {
		node := t.Node(id)
		b := bitset.New(uint(n))
		if node.IsLeaf() {
			if i, ok := idx[node.Name]; ok {
				b.Set(uint(i))
			} else {
				unknown++
			}
		} else {
			for _, ch := range node.Children() {
				b.InPlaceUnion(members[ch])
			}
			if len(node.Children()) > 2 {
				c.NMulti++
			}
		}
		members[id] = b
	}
	if unknown > 0 {
		log.Warningf("%d constraint leaves are not in the distance matrix", unknown)
	}

	c.Scope = members[t.Root]
	c.scopeCount = c.Scope.Count()
	if c.scopeCount < 2 {
		return nil
	}

	// class propagation, parents come before children in reverse
	// post-order
	class := make([]tree.Flag, t.NNodes())
	for i := len(order) - 1; i >= 0; i-- {
		node := t.Node(order[i])
		class[node.ID] = node.Flag
		if node.Flag == tree.NoFlag && !node.IsRoot() && class[node.Parent] == tree.Inherit {
			class[node.ID] = tree.Inherit
		}
	}

	for _, id := range order {
		node := t.Node(id)
		if node.IsLeaf() || node.IsRoot() {
			continue
		}
		cnt := members[id].Count()
		if cnt < 2 || cnt >= c.scopeCount {
			continue
		}
		c.Groups = append(c.Groups, Group{Members: members[id], Flag: class[id], count: cnt})
	}

	root := t.RootNode()
	if applyAtRoot && len(root.Children()) == 2 && c.NMulti <= 1 {
		left := members[root.Children()[0]].Count()
		c.Rooted = left > 0 && left < c.scopeCount
		if c.Rooted {
			// the root sides are clusters even if they are single taxa
			for _, ch := range root.Children() {
				if cnt := members[ch].Count(); cnt == 1 {
					c.Groups = append(c.Groups, Group{Members: members[ch], Flag: class[root.ID], count: cnt})
				}
			}
		}
	}
	return c
}

// compatible tests whether a cluster x can be formed without breaking
// any group of the constraint.
func (c *Constraint) compatible(x *bitset.BitSet) bool {
	k := x.IntersectionCardinality(c.Scope)
	if k <= 1 {
		return true
	}
	for i := range c.Groups {
		g := &c.Groups[i]
		inter := x.IntersectionCardinality(g.Members)
		if inter == 0 || inter == k || inter == g.count {
			continue
		}
		if !c.Rooted && k-inter == c.scopeCount-g.count {
			// x contains the complement of the group
			continue
		}
		return false
	}
	return true
}

// match returns the group which cluster x realizes exactly.
func (c *Constraint) match(x *bitset.BitSet) *Group {
	k := x.IntersectionCardinality(c.Scope)
	if k == 0 {
		return nil
	}
	for i := range c.Groups {
		g := &c.Groups[i]
		inter := x.IntersectionCardinality(g.Members)
		if inter == k && k == g.count {
			return g
		}
		if !c.Rooted && inter == 0 && k == c.scopeCount-g.count {
			return g
		}
	}
	return nil
}

// compatible tests a cluster against all the constraints.
func (cs *Constraints) compatible(x *bitset.BitSet) bool {
	for _, c := range cs.List {
		if !c.compatible(x) {
			return false
		}
	}
	return true
}

// tag returns the flag for a node joining clusters a and b into x. A
// node is tagged if x realizes a group which neither a nor b realizes.
func (cs *Constraints) tag(x, a, b *bitset.BitSet) tree.Flag {
	for _, c := range cs.List {
		g := c.match(x)
		if g == nil || c.match(a) == g || c.match(b) == g {
			continue
		}
		if g.Flag == tree.NoFlag {
			return tree.Temporary
		}
		return g.Flag
	}
	return tree.NoFlag
}
