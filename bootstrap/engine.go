// Package bootstrap computes support of reference tree branches (or
// nodes) from trees rebuilt on resampled data.
package bootstrap

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/genetree/tree"
)

var log = logging.MustGetLogger("bootstrap")

var (
	// ErrInconsistentResample is returned for a resampled tree with a
	// different leaf set.
	ErrInconsistentResample = errors.New("inconsistent resampled tree")
	// ErrNormalized is returned when support is accumulated or
	// normalized after normalization.
	ErrNormalized = errors.New("support is already normalized")
)

// Mode is the support criterion.
type Mode int

const (
	// Branch mode supports an edge if a resampled tree has the same
	// bipartition.
	Branch Mode = iota
	// Node mode supports an internal node if a resampled tree has the
	// same partition of leaves around a node.
	Node
)

func (m Mode) String() string {
	if m == Node {
		return "node"
	}
	return "branch"
}

// ParseMode returns a mode by name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "branch":
		return Branch, nil
	case "node":
		return Node, nil
	}
	return Branch, fmt.Errorf("unknown support mode: %s", s)
}

// State is a stage of the support computation.
type State int

const (
	Prepared State = iota
	Accumulating
	Normalized
)

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// part is a set of leaves with its hash.
type part struct {
	members *bitset.BitSet
	// xor of mixed leaf ids
	xor   uint64
	count uint
}

func (p part) magic() uint64 {
	return p.xor ^ mix(uint64(p.count)<<32)
}

func (p part) equal(o part) bool {
	return p.count == o.count && p.xor == o.xor && p.members.Equal(o.members)
}

// signature is the hashed set of parts compared between trees: a single
// part in Branch mode and the parts around a node in Node mode.
type signature struct {
	parts []part
	magic uint64
}

func (s signature) equal(o signature) bool {
	if len(s.parts) != len(o.parts) {
		return false
	}
outer:
	for _, p := range s.parts {
		for _, q := range o.parts {
			if p.equal(q) {
				continue outer
			}
		}
		return false
	}
	return true
}

// target is a supported element of the reference tree. Several
// reference nodes share a target when they define the same bipartition,
// e.g. the two root branches.
type target struct {
	sig   signature
	nodes []int
}

// Engine accumulates support of a reference tree.
type Engine struct {
	ref     *tree.Tree
	mode    Mode
	names   []string
	targets []target
	byMagic map[uint64][]int
	counts  []int
	state   State
}

// leafParts returns parts of all subtrees of t indexed by node id.
func leafParts(t *tree.Tree, n uint) []part {
	parts := make([]part, t.NNodes())
	for _, id := range t.PostOrder() {
		node := t.Node(id)
		p := part{members: bitset.New(n)}
		if node.IsLeaf() {
			p.members.Set(uint(node.LeafID))
			p.xor = mix(uint64(node.LeafID))
			p.count = 1
		}
		for _, c := range node.Children() {
			p.members.InPlaceUnion(parts[c].members)
			p.xor ^= parts[c].xor
			p.count += parts[c].count
		}
		parts[id] = p
	}
	return parts
}

// complement returns leaves outside of p.
func complement(p, all part) part {
	return part{
		members: p.members.Complement(),
		xor:     p.xor ^ all.xor,
		count:   all.count - p.count,
	}
}

// signatures returns signatures of the supported nodes of t indexed by
// node id, nil for unsupported ones (leaves and the root).
func signatures(t *tree.Tree, mode Mode, n uint) []*signature {
	parts := leafParts(t, n)
	all := parts[t.Root]
	sigs := make([]*signature, t.NNodes())
	for _, node := range t.Nodes() {
		if node.IsLeaf() {
			continue
		}
		var s signature
		switch mode {
		case Branch:
			if node.IsRoot() {
				continue
			}
			p := parts[node.ID]
			// the side without leaf 0 represents the bipartition
			if p.members.Test(0) {
				p = complement(p, all)
			}
			if p.count < 2 || all.count-p.count < 2 {
				continue
			}
			s.parts = []part{p}
		case Node:
			if node.IsRoot() && len(node.Children()) < 3 {
				continue
			}
			for _, c := range node.Children() {
				s.parts = append(s.parts, parts[c])
			}
			if !node.IsRoot() {
				s.parts = append(s.parts, complement(parts[node.ID], all))
			}
		}
		for _, p := range s.parts {
			s.magic += mix(p.magic())
		}
		sigs[node.ID] = &s
	}
	return sigs
}

// Prepare computes signatures of the reference tree nodes. The tree
// leaf ids have to be 0..N-1.
func Prepare(ref *tree.Tree, mode Mode) (*Engine, error) {
	e := &Engine{
		ref:     ref,
		mode:    mode,
		byMagic: make(map[uint64][]int),
	}
	leaves := ref.Leaves()
	if len(leaves) < 1 {
		return nil, fmt.Errorf("%w: empty reference tree", tree.ErrNotEnoughLeaves)
	}
	e.names = make([]string, len(leaves))
	for i, id := range leaves {
		if id < 0 {
			return nil, fmt.Errorf("%w: leaf id %d is missing in the reference", ErrInconsistentResample, i)
		}
		e.names[i] = ref.Node(id).Name
	}

	for id, s := range signatures(ref, mode, uint(len(leaves))) {
		if s == nil {
			continue
		}
		found := false
		for _, k := range e.byMagic[s.magic] {
			if e.targets[k].sig.equal(*s) {
				e.targets[k].nodes = append(e.targets[k].nodes, id)
				found = true
				break
			}
		}
		if !found {
			e.byMagic[s.magic] = append(e.byMagic[s.magic], len(e.targets))
			e.targets = append(e.targets, target{sig: *s, nodes: []int{id}})
		}
	}
	e.counts = make([]int, len(e.targets))
	log.Debugf("Prepared %d %s signatures", len(e.targets), mode)
	return e, nil
}

// Mode returns the support mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Counts returns raw support counts of the targets.
func (e *Engine) Counts() []int {
	return e.counts
}

// Compare finds reference targets present in a resampled tree. It does
// not modify the engine and can be called concurrently.
func (e *Engine) Compare(t *tree.Tree) ([]int, error) {
	leaves := t.Leaves()
	if len(leaves) != len(e.names) || t.NLeaves() != len(e.names) {
		return nil, fmt.Errorf("%w: %d leaves instead of %d", ErrInconsistentResample, t.NLeaves(), len(e.names))
	}
	for i, id := range leaves {
		if id < 0 || t.Node(id).Name != e.names[i] {
			return nil, fmt.Errorf("%w: leaf id %d is not %s", ErrInconsistentResample, i, e.names[i])
		}
	}

	used := bitset.New(uint(len(e.targets)))
	var matched []int
	for _, s := range signatures(t, e.mode, uint(len(e.names))) {
		if s == nil {
			continue
		}
		for _, k := range e.byMagic[s.magic] {
			if !used.Test(uint(k)) && e.targets[k].sig.equal(*s) {
				used.Set(uint(k))
				matched = append(matched, k)
				break
			}
		}
	}
	return matched, nil
}

// Add increments counts of the matched targets.
func (e *Engine) Add(matched []int) error {
	if e.state == Normalized {
		return ErrNormalized
	}
	e.state = Accumulating
	for _, k := range matched {
		e.counts[k]++
	}
	return nil
}

// Accumulate compares a resampled tree with the reference and adds the
// support.
func (e *Engine) Accumulate(t *tree.Tree) error {
	if e.state == Normalized {
		return ErrNormalized
	}
	matched, err := e.Compare(t)
	if err != nil {
		return err
	}
	return e.Add(matched)
}

// Restore sets the raw counts, e.g. from a checkpoint.
func (e *Engine) Restore(counts []int) error {
	if e.state == Normalized {
		return ErrNormalized
	}
	if len(counts) != len(e.counts) {
		return fmt.Errorf("%w: %d counts for %d targets", ErrInconsistentResample, len(counts), len(e.counts))
	}
	copy(e.counts, counts)
	e.state = Accumulating
	return nil
}

// Normalize sets support of the reference nodes to the percentage of
// total replicates. With zero total the support is set to sentinel.
// Nodes without support (leaves, the root in Branch mode) get
// tree.NoSupport.
func (e *Engine) Normalize(total, sentinel int) error {
	if e.state == Normalized {
		return ErrNormalized
	}
	for _, node := range e.ref.Nodes() {
		node.Support = tree.NoSupport
	}
	for k, tg := range e.targets {
		support := sentinel
		if total > 0 {
			support = int(math.Round(100 * float64(e.counts[k]) / float64(total)))
		}
		for _, id := range tg.nodes {
			e.ref.Node(id).Support = support
		}
	}
	e.state = Normalized
	return nil
}

// Support returns support values of the supported reference nodes.
func (e *Engine) Support() []int {
	var res []int
	for _, tg := range e.targets {
		for _, id := range tg.nodes {
			res = append(res, e.ref.Node(id).Support)
		}
	}
	return res
}
