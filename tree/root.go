package tree

import (
	"fmt"
	"math"
)

// Unroot removes the bifurcating root joining its two branches. An
// internal child of the root becomes the new root. Unroot returns the
// id of the node whose branch absorbed the root, calling RootAt with
// this id restores the original topology.
func (t *Tree) Unroot() (int, error) {
	root := t.nodes[t.Root]
	if len(root.children) != 2 {
		return -1, ErrNotRooted
	}
	// b becomes the root, it should be internal
	ia, ib := 0, 1
	if t.nodes[root.children[1]].IsLeaf() {
		ia, ib = 1, 0
	}
	a, b := t.nodes[root.children[ia]], t.nodes[root.children[ib]]
	if b.IsLeaf() {
		return -1, fmt.Errorf("%w: two leaves tree cannot be unrooted", ErrNotEnoughLeaves)
	}
	first := ia == 0

	switch {
	case a.HasLength() || b.HasLength():
		a.BranchLength = a.Length() + b.Length()
	default:
		a.BranchLength = NoLength
	}
	if b.Support > a.Support {
		a.Support = b.Support
	}
	// both root branches are one edge of the unrooted tree
	if a.Flag == NoFlag {
		a.Flag = b.Flag
	}
	b.Parent = -1
	b.BranchLength = NoLength
	b.Support = NoSupport
	b.Flag = NoFlag
	a.Parent = b.ID
	if first {
		b.children = append([]int{a.ID}, b.children...)
	} else {
		b.children = append(b.children, a.ID)
	}

	oldRoot := root.ID
	root.children = nil
	t.Root = b.ID
	t.removeNode(oldRoot)
	return a.ID, nil
}

// RootAt places the root in the middle of the branch connecting node x
// to its parent. A rooted tree is unrooted first, so the number of
// nodes does not change for rooted trees and grows by one for unrooted
// ones.
func (t *Tree) RootAt(x int) error {
	if x < 0 || x >= len(t.nodes) || x == t.Root {
		return fmt.Errorf("%w: cannot root at %d", ErrBadNode, x)
	}
	xn := t.nodes[x]
	if t.IsRooted() {
		absorbed, err := t.Unroot()
		if err != nil {
			return err
		}
		if xn.IsRoot() {
			xn = t.nodes[absorbed]
		}
	}
	x = xn.ID
	p := xn.Parent

	path := []int{p}
	for q := t.nodes[p].Parent; q >= 0; q = t.nodes[q].Parent {
		path = append(path, q)
	}
	lens := make([]float64, len(path))
	sup := make([]int, len(path))
	flags := make([]Flag, len(path))
	for i, id := range path {
		lens[i] = t.nodes[id].BranchLength
		sup[i] = t.nodes[id].Support
		flags[i] = t.nodes[id].Flag
	}

	pos := t.removeChild(p, x)
	// reverse the branches on the path to the old root, branch
	// attributes move with their edges
	for i := 0; i < len(path)-1; i++ {
		c, q := path[i], path[i+1]
		t.removeChild(q, c)
		t.AddChild(c, q)
		t.nodes[q].BranchLength = lens[i]
		t.nodes[q].Support = sup[i]
		t.nodes[q].Flag = flags[i]
	}

	r := t.NewNode("")
	pn := t.nodes[p]
	if pos == 0 {
		t.AddChild(r.ID, x)
		t.AddChild(r.ID, p)
	} else {
		t.AddChild(r.ID, p)
		t.AddChild(r.ID, x)
	}
	if xn.HasLength() {
		xn.BranchLength /= 2
		pn.BranchLength = xn.BranchLength
	} else {
		pn.BranchLength = NoLength
	}
	pn.Support = xn.Support
	pn.Flag = xn.Flag
	t.Root = r.ID
	t.invalidate()
	return nil
}

// placeOnEdge returns the length of the branch leading to the side of
// height ha, so that a root placed on the edge of length l minimizes
// the tree height.
func placeOnEdge(ha, hb, l float64) float64 {
	x := (l + hb - ha) / 2
	switch {
	case x < 0:
		return 0
	case x > l:
		return l
	}
	return x
}

// SlideRoot redistributes the total length of the two root branches so
// that heights of the two root subtrees become equal as far as the
// length allows. It returns the resulting tree height.
func (t *Tree) SlideRoot() (float64, error) {
	root := t.nodes[t.Root]
	if len(root.children) != 2 {
		return 0, ErrNotRooted
	}
	h := t.Heights()
	a, b := t.nodes[root.children[0]], t.nodes[root.children[1]]
	if !a.HasLength() && !b.HasLength() {
		return h[t.Root], nil
	}
	l := a.Length() + b.Length()
	a.BranchLength = placeOnEdge(h[a.ID], h[b.ID], l)
	b.BranchLength = l - a.BranchLength
	return math.Max(h[a.ID]+a.BranchLength, h[b.ID]+b.BranchLength), nil
}

// MinHeightEdge finds the branch on which a root yields the smallest
// tree height. It returns the node below the branch and the height.
// Ties are resolved by the smallest node id.
func (t *Tree) MinHeightEdge() (int, float64) {
	order := t.PostOrder()
	down := t.Heights()
	// up[v] is the height of the tree outside subtree v measured from
	// the parent of v.
	up := make([]float64, len(t.nodes))
	for i := len(order) - 1; i >= 0; i-- {
		p := t.nodes[order[i]]
		if p.IsLeaf() {
			continue
		}
		above := 0.0
		if !p.IsRoot() {
			above = up[p.ID] + p.Length()
		}
		first, second := math.Inf(-1), math.Inf(-1)
		firstID := -1
		for _, c := range p.children {
			v := down[c] + t.nodes[c].Length()
			switch {
			case v > first:
				first, second = v, first
				firstID = c
			case v > second:
				second = v
			}
		}
		for _, c := range p.children {
			other := first
			if c == firstID {
				other = second
			}
			up[c] = math.Max(above, math.Max(other, 0))
		}
	}

	best, bestH := -1, math.Inf(1)
	for _, node := range t.nodes {
		if node.IsRoot() {
			continue
		}
		l := node.Length()
		x := placeOnEdge(down[node.ID], up[node.ID], l)
		h := math.Max(down[node.ID]+x, up[node.ID]+l-x)
		if h < bestH {
			best, bestH = node.ID, h
		}
	}
	return best, bestH
}

// RootByMinHeight roots the tree on the branch minimizing the tree
// height and returns the height.
func (t *Tree) RootByMinHeight() (float64, error) {
	if t.NLeaves() < 3 {
		return t.Height(), nil
	}
	e, _ := t.MinHeightEdge()
	if err := t.RootAt(e); err != nil {
		return 0, err
	}
	return t.SlideRoot()
}
