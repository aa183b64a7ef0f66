// Package nj builds trees from distance matrices with neighbor joining,
// optionally restricted by constraint trees.
package nj

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/genetree/distance"
	"bitbucket.org/Davydov/genetree/tree"
)

var log = logging.MustGetLogger("nj")

var (
	// ErrInvalidMatrix is returned for an empty matrix or a matrix
	// with non-finite values.
	ErrInvalidMatrix = distance.ErrInvalidMatrix
	// ErrConflictingConstraints is returned when no pair of clusters
	// can be joined without breaking a constraint.
	ErrConflictingConstraints = errors.New("conflicting constraints")
)

// Build reconstructs a tree from the distance matrix. Leaf ids of the
// result are the matrix rows. Constraint trees restrict the joins, see
// Prepare. The matrix is not modified.
func Build(m *distance.Matrix, constraints []*tree.Tree, applyAtRoot bool) (*tree.Tree, error) {
	return BuildPrepared(m, Prepare(m.Names, constraints, applyAtRoot))
}

// BuildPrepared is Build with preprocessed constraints. cs can be nil.
func BuildPrepared(m *distance.Matrix, cs *Constraints) (*tree.Tree, error) {
	n := m.N()
	if n < 1 {
		return nil, fmt.Errorf("%w: no taxa", ErrInvalidMatrix)
	}
	d := m.Copy()
	if _, err := d.Clamp(distance.Floor); err != nil {
		return nil, err
	}

	t := tree.New()
	for i, name := range m.Names {
		t.NewLeaf(name, i)
	}

	switch n {
	case 1:
		t.Root = 0
		t.Init()
		return t, nil
	case 2:
		root := t.NewNode("")
		t.AddChild(root.ID, 0)
		t.AddChild(root.ID, 1)
		t.Node(0).BranchLength = d.At(0, 1) / 2
		t.Node(1).BranchLength = d.At(0, 1) / 2
		t.Root = root.ID
		t.Init()
		return t, nil
	}

	b := newBuilder(t, d, cs)
	if err := b.run(); err != nil {
		return nil, err
	}
	t.Init()
	return t, nil
}

// builder holds the working state of a build. Clusters are identified
// by matrix slots, a merged cluster takes the slot of one of the joined
// clusters.
type builder struct {
	t      *tree.Tree
	w      [][]float64
	sum    []float64
	active []int
	node   []int
	cs     *Constraints
	// members are matrix rows of the cluster in every slot, only used
	// with constraints.
	members []*bitset.BitSet
	scratch *bitset.BitSet
}

func newBuilder(t *tree.Tree, d *distance.Matrix, cs *Constraints) *builder {
	n := d.N()
	b := &builder{
		t:      t,
		w:      make([][]float64, n),
		sum:    make([]float64, n),
		active: make([]int, n),
		node:   make([]int, n),
	}
	for i := 0; i < n; i++ {
		b.w[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			b.w[i][j] = d.At(i, j)
			b.sum[i] += b.w[i][j]
		}
		b.active[i] = i
		b.node[i] = i
	}
	if cs.Len() > 0 {
		b.cs = cs
		b.members = make([]*bitset.BitSet, n)
		for i := range b.members {
			b.members[i] = bitset.New(uint(n)).Set(uint(i))
		}
		b.scratch = bitset.New(uint(n))
	}
	return b
}

// union stores the union of clusters in slots i and j to scratch.
func (b *builder) union(i, j int) *bitset.BitSet {
	b.members[i].CopyFull(b.scratch)
	b.scratch.InPlaceUnion(b.members[j])
	return b.scratch
}

// pick returns positions in active of the pair minimizing the Q
// criterion among the pairs allowed by the constraints.
func (b *builder) pick() (int, int) {
	k := len(b.active)
	bi, bj := -1, -1
	best := math.Inf(1)
	for x := 0; x < k; x++ {
		i := b.active[x]
		ri := b.sum[i] / float64(k-2)
		for y := 0; y < x; y++ {
			j := b.active[y]
			q := b.w[i][j] - ri - b.sum[j]/float64(k-2)
			if q >= best {
				continue
			}
			if b.cs != nil && !b.cs.compatible(b.union(i, j)) {
				continue
			}
			best = q
			bi, bj = x, y
		}
	}
	return bi, bj
}

// join merges clusters at active positions x and y. The merged cluster
// takes the slot of x.
func (b *builder) join(x, y int) {
	k := len(b.active)
	i, j := b.active[x], b.active[y]
	dij := b.w[i][j]
	ri := b.sum[i] / float64(k-2)
	rj := b.sum[j] / float64(k-2)
	li := math.Max(0, dij/2+(ri-rj)/2)
	lj := math.Max(0, dij-li)

	u := b.t.NewNode("")
	b.t.AddChild(u.ID, b.node[i])
	b.t.AddChild(u.ID, b.node[j])
	b.t.Node(b.node[i]).BranchLength = li
	b.t.Node(b.node[j]).BranchLength = lj

	if b.cs != nil {
		u.Flag = b.cs.tag(b.union(i, j), b.members[i], b.members[j])
		b.members[i].InPlaceUnion(b.members[j])
	}

	b.sum[i] = 0
	for _, s := range b.active {
		if s == i || s == j {
			continue
		}
		dus := math.Max(0, (b.w[i][s]+b.w[j][s]-dij)/2)
		b.sum[s] += dus - b.w[i][s] - b.w[j][s]
		b.w[i][s] = dus
		b.w[s][i] = dus
		b.sum[i] += dus
	}
	b.node[i] = u.ID

	b.active[y] = b.active[k-1]
	b.active = b.active[:k-1]
}

func (b *builder) run() error {
	rooted := b.cs.Rooted()
	stop := 3
	if rooted {
		stop = 2
	}
	for len(b.active) > stop {
		x, y := b.pick()
		if x < 0 {
			return fmt.Errorf("%w: no compatible pair among %d clusters", ErrConflictingConstraints, len(b.active))
		}
		b.join(x, y)
	}

	root := b.t.NewNode("")
	if rooted {
		i, j := b.active[0], b.active[1]
		for _, s := range []int{i, j} {
			b.t.AddChild(root.ID, b.node[s])
			b.t.Node(b.node[s]).BranchLength = b.w[i][j] / 2
		}
	} else {
		a, c, e := b.active[0], b.active[1], b.active[2]
		lengths := []float64{
			(b.w[a][c] + b.w[a][e] - b.w[c][e]) / 2,
			(b.w[a][c] + b.w[c][e] - b.w[a][e]) / 2,
			(b.w[a][e] + b.w[c][e] - b.w[a][c]) / 2,
		}
		for k, s := range []int{a, c, e} {
			b.t.AddChild(root.ID, b.node[s])
			b.t.Node(b.node[s]).BranchLength = math.Max(0, lengths[k])
		}
	}
	b.t.Root = root.ID
	log.Debugf("Built a tree with %d leaves, rooted=%v", len(b.w), rooted)
	return nil
}
