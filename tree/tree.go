// Package tree implements phylogenetic trees. Nodes live in an arena
// owned by the tree and reference each other by integer ids, so
// structural edits (rerooting, merging) only rewrite indices.
package tree

import (
	"fmt"
	"strings"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("tree")

// Flag is a constraint class of a node.
type Flag int

const (
	// NoFlag marks a free node.
	NoFlag Flag = iota
	// Inherit marks a constrained node ("{C}"), the mark is kept
	// in the resulting tree and inherited by nested groups.
	Inherit
	// Temporary marks a node constrained during a build only ("{P}").
	Temporary
)

func (f Flag) String() string {
	switch f {
	case Inherit:
		return "C"
	case Temporary:
		return "P"
	}
	return ""
}

const (
	// NoLength is the branch length of a branch which was never set.
	NoLength = -1.0
	// NoSupport is the support value of a node without support.
	NoSupport = -1
)

// Node is a tree node. Parent and children are node ids in the
// owning tree.
type Node struct {
	ID           int
	Name         string
	Parent       int
	children     []int
	BranchLength float64
	// LeafID is a stable index of a leaf, -1 for internal nodes.
	LeafID int
	// Finish is the post-order index set by Tree.Init.
	Finish int
	// NLeaves is the number of leaves in the subtree set by Tree.Init.
	NLeaves int
	Support int
	Flag    Flag
}

// Children returns ids of the child nodes.
func (node *Node) Children() []int {
	return node.children
}

func (node *Node) IsLeaf() bool {
	return len(node.children) == 0
}

func (node *Node) IsRoot() bool {
	return node.Parent < 0
}

// HasLength tests whether the branch length was set.
func (node *Node) HasLength() bool {
	return node.BranchLength >= 0
}

// Length returns the branch length or zero if it was not set.
func (node *Node) Length() float64 {
	if node.BranchLength < 0 {
		return 0
	}
	return node.BranchLength
}

// copy creates a copy of the node sharing nothing with the original.
func (node *Node) copy() *Node {
	n := *node
	n.children = make([]int, len(node.children))
	copy(n.children, node.children)
	return &n
}

func (node *Node) LongString() (s string) {
	s = "<"
	if node.IsRoot() {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("ID=%v, BranchLength=%v", node.ID, node.BranchLength)
	if node.IsLeaf() {
		s += fmt.Sprintf(", LeafID=%v", node.LeafID)
	}
	if node.Flag != NoFlag {
		s += fmt.Sprintf(", Flag=%v", node.Flag)
	}
	s += ">"
	return
}

// Tree is a rooted or unrooted tree. An unrooted tree is represented
// with a multifurcating (usually trifurcating) root node.
type Tree struct {
	nodes []*Node
	Root  int

	// post-order and leaf index caches, nil when stale.
	order  []int
	leaves []int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{Root: -1}
}

// NewNode allocates a detached node.
func (t *Tree) NewNode(name string) *Node {
	node := &Node{
		ID:           len(t.nodes),
		Name:         name,
		Parent:       -1,
		BranchLength: NoLength,
		LeafID:       -1,
		Finish:       -1,
		Support:      NoSupport,
	}
	t.nodes = append(t.nodes, node)
	t.invalidate()
	return node
}

// NewLeaf allocates a detached leaf with the given leaf id.
func (t *Tree) NewLeaf(name string, leafID int) *Node {
	node := t.NewNode(name)
	node.LeafID = leafID
	return node
}

// AddChild attaches child to parent.
func (t *Tree) AddChild(parent, child int) {
	t.nodes[child].Parent = parent
	t.nodes[parent].children = append(t.nodes[parent].children, child)
	t.invalidate()
}

// removeChild removes child from the parent children list and returns
// its position there. The Parent field of the child is left for the
// caller to update.
func (t *Tree) removeChild(parent, child int) int {
	p := t.nodes[parent]
	for i, c := range p.children {
		if c == child {
			p.children = append(p.children[:i], p.children[i+1:]...)
			t.invalidate()
			return i
		}
	}
	panic("child is not found")
}

// removeNode deletes a detached node from the arena. The last node
// takes its id.
func (t *Tree) removeNode(id int) {
	last := len(t.nodes) - 1
	if id != last {
		moved := t.nodes[last]
		moved.ID = id
		t.nodes[id] = moved
		if moved.Parent >= 0 {
			p := t.nodes[moved.Parent]
			for i, c := range p.children {
				if c == last {
					p.children[i] = id
				}
			}
		}
		for _, c := range moved.children {
			t.nodes[c].Parent = id
		}
		if t.Root == last {
			t.Root = id
		}
	}
	t.nodes[last] = nil
	t.nodes = t.nodes[:last]
	t.invalidate()
}

func (t *Tree) invalidate() {
	t.order = nil
	t.leaves = nil
}

// Node returns the node with the given id.
func (t *Tree) Node(id int) *Node {
	return t.nodes[id]
}

// Nodes returns all the nodes indexed by id.
func (t *Tree) Nodes() []*Node {
	return t.nodes
}

// NNodes returns the number of nodes.
func (t *Tree) NNodes() int {
	return len(t.nodes)
}

// RootNode returns the root node.
func (t *Tree) RootNode() *Node {
	return t.nodes[t.Root]
}

// IsRooted returns true if the root is bifurcating.
func (t *Tree) IsRooted() bool {
	return len(t.nodes[t.Root].children) == 2
}

// Init computes post-order finish times, leaf counts and the leaf index.
// It has to be called after every structural change; accessors call it
// lazily.
func (t *Tree) Init() {
	t.order = make([]int, 0, len(t.nodes))
	maxLeafID := -1
	// iterative post-order: (node, next child index)
	type frame struct{ id, next int }
	stack := []frame{{t.Root, 0}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		node := t.nodes[f.id]
		if f.next < len(node.children) {
			child := node.children[f.next]
			f.next++
			stack = append(stack, frame{child, 0})
			continue
		}
		stack = stack[:len(stack)-1]
		node.Finish = len(t.order)
		t.order = append(t.order, node.ID)
		if node.IsLeaf() {
			node.NLeaves = 1
			if node.LeafID > maxLeafID {
				maxLeafID = node.LeafID
			}
		} else {
			node.NLeaves = 0
			for _, c := range node.children {
				node.NLeaves += t.nodes[c].NLeaves
			}
		}
	}
	t.leaves = make([]int, maxLeafID+1)
	for i := range t.leaves {
		t.leaves[i] = -1
	}
	for _, id := range t.order {
		node := t.nodes[id]
		if node.IsLeaf() && node.LeafID >= 0 {
			t.leaves[node.LeafID] = id
		}
	}
	if len(t.order) != len(t.nodes) {
		log.Warningf("%d nodes are not reachable from the root", len(t.nodes)-len(t.order))
	}
}

// PostOrder returns node ids in post-order.
func (t *Tree) PostOrder() []int {
	if t.order == nil {
		t.Init()
	}
	return t.order
}

// Leaves returns leaf node ids indexed by leaf id. Missing leaf ids
// have value -1.
func (t *Tree) Leaves() []int {
	if t.leaves == nil {
		t.Init()
	}
	return t.leaves
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	if t.order == nil {
		t.Init()
	}
	return t.nodes[t.Root].NLeaves
}

// LeafByName returns the id of the leaf with the given name.
func (t *Tree) LeafByName(name string) (int, bool) {
	for _, id := range t.Leaves() {
		if id >= 0 && t.nodes[id].Name == name {
			return id, true
		}
	}
	return -1, false
}

// AssignLeafIDs numbers the leaves in pre-order starting from zero.
func (t *Tree) AssignLeafIDs() {
	leafID := 0
	stack := []int{t.Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := t.nodes[id]
		if node.IsLeaf() {
			node.LeafID = leafID
			leafID++
			continue
		}
		node.LeafID = -1
		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, node.children[i])
		}
	}
	t.invalidate()
}

// Copy creates independent copy of the tree. Node ids are preserved.
func (t *Tree) Copy() *Tree {
	newTree := &Tree{
		nodes: make([]*Node, len(t.nodes)),
		Root:  t.Root,
	}
	for i, node := range t.nodes {
		newTree.nodes[i] = node.copy()
	}
	if t.order != nil {
		newTree.order = append([]int(nil), t.order...)
		newTree.leaves = append([]int(nil), t.leaves...)
	}
	return newTree
}

// Check validates tree invariants: parent links, unique leaf ids and
// finish-time ordering.
func (t *Tree) Check() error {
	t.Init()
	if len(t.order) != len(t.nodes) {
		return fmt.Errorf("%d unreachable nodes", len(t.nodes)-len(t.order))
	}
	seen := make(map[int]bool)
	for _, node := range t.nodes {
		for _, c := range node.children {
			if t.nodes[c].Parent != node.ID {
				return fmt.Errorf("node %d: child %d has parent %d", node.ID, c, t.nodes[c].Parent)
			}
			if t.nodes[c].Finish >= node.Finish {
				return fmt.Errorf("node %d: finish time is not greater than child %d", node.ID, c)
			}
		}
		if node.IsLeaf() {
			if node.LeafID < 0 {
				return fmt.Errorf("leaf %d (%s) has no leaf id", node.ID, node.Name)
			}
			if seen[node.LeafID] {
				return fmt.Errorf("duplicate leaf id %d", node.LeafID)
			}
			seen[node.LeafID] = true
		}
	}
	if t.nodes[t.Root].Parent != -1 {
		return fmt.Errorf("root %d has a parent", t.Root)
	}
	return nil
}

// Heights returns the maximum distance from every node to a leaf in its
// subtree.
func (t *Tree) Heights() []float64 {
	h := make([]float64, len(t.nodes))
	for _, id := range t.PostOrder() {
		node := t.nodes[id]
		for _, c := range node.children {
			if v := h[c] + t.nodes[c].Length(); v > h[id] {
				h[id] = v
			}
		}
	}
	return h
}

// Height returns the maximum root to leaf distance.
func (t *Tree) Height() float64 {
	return t.Heights()[t.Root]
}

// ClearTemporary removes Temporary flags.
func (t *Tree) ClearTemporary() {
	for _, node := range t.nodes {
		if node.Flag == Temporary {
			node.Flag = NoFlag
		}
	}
}

// FullString returns an indented multi-line representation of the tree.
func (t *Tree) FullString() string {
	var b strings.Builder
	var rec func(id int, prefix string)
	rec = func(id int, prefix string) {
		b.WriteString(prefix + t.nodes[id].LongString() + "\n")
		for _, c := range t.nodes[id].children {
			rec(c, prefix+"    ")
		}
	}
	rec(t.Root, "")
	return strings.TrimSpace(b.String())
}
