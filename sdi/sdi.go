// Package sdi reconciles gene trees with a species tree: it maps gene
// nodes to species, classifies them as speciations or duplications,
// infers gene losses, roots gene trees by the reconciliation cost and
// infers orthologs.
package sdi

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/op/go-logging"

	"bitbucket.org/Davydov/genetree/tree"
)

var log = logging.MustGetLogger("sdi")

// ErrUnknownSpecies is returned when a gene leaf cannot be linked to a
// species.
var ErrUnknownSpecies = errors.New("unknown species")

// Event is a reconciliation class of a gene tree node.
type Event int

const (
	// Unclassified nodes have less than two children mapped to species.
	Unclassified Event = iota
	Speciation
	Duplication
)

func (e Event) String() string {
	switch e {
	case Speciation:
		return "speciation"
	case Duplication:
		return "duplication"
	}
	return "unclassified"
}

// Annotation is the reconciliation of a single gene tree node.
type Annotation struct {
	// Species is the species tree node id, -1 for unmapped nodes.
	Species int
	Event   Event
	// Confirmed is set for duplications whose children share at least
	// one leaf species, i.e. both copies are observed in a common species.
	// Duplications inferred only from the topology (disjoint child species
	// sets) stay unconfirmed. Always false for speciations.
	Confirmed bool
	// SIS is the species intersection score of the children, 0-100.
	SIS int
	// Lost are species tree nodes in which a gene copy was lost.
	Lost []int

	// passed are positions of the children of Species covered by the
	// subtree.
	passed *bitset.BitSet
	// species are species tree leaf ids present in the subtree.
	species *bitset.BitSet
}

// Reconciliation is the result of reconciling a gene tree.
type Reconciliation struct {
	Gene    *tree.Tree
	Species *tree.Tree
	// Ann is indexed by gene tree node id.
	Ann          []Annotation
	Duplications int
	Unclassified int
	Losses       int
}

// Reconciler maps gene trees onto a fixed species tree. It is safe for
// concurrent use once created.
type Reconciler struct {
	species *tree.Tree
	// clade are species tree leaf ids under every species node.
	clade []*bitset.BitSet
	// pos is the position of a species node among its parent children.
	pos []int
	// nLeafIDs is the size of species leaf sets.
	nLeafIDs uint
}

// NewReconciler prepares the species tree for reconciliation.
func NewReconciler(species *tree.Tree) (*Reconciler, error) {
	if species.NLeaves() < 1 {
		return nil, fmt.Errorf("%w: empty species tree", tree.ErrNotEnoughLeaves)
	}
	if err := species.Check(); err != nil {
		return nil, fmt.Errorf("bad species tree: %v", err)
	}
	n := uint(len(species.Leaves()))
	r := &Reconciler{
		species:  species,
		clade:    make([]*bitset.BitSet, species.NNodes()),
		pos:      make([]int, species.NNodes()),
		nLeafIDs: n,
	}
	for _, id := range species.PostOrder() {
		node := species.Node(id)
		b := bitset.New(n)
		if node.IsLeaf() {
			b.Set(uint(node.LeafID))
		}
		for i, c := range node.Children() {
			b.InPlaceUnion(r.clade[c])
			r.pos[c] = i
		}
		r.clade[id] = b
	}
	r.pos[species.Root] = -1
	return r, nil
}

// lca returns the last common ancestor of two species nodes. Ancestors
// have larger finish times, so the side with the smaller one moves up.
func (r *Reconciler) lca(a, b int) int {
	for a != b {
		if r.species.Node(a).Finish < r.species.Node(b).Finish {
			a = r.species.Node(a).Parent
		} else {
			b = r.species.Node(b).Parent
		}
	}
	return a
}

// below returns the child of ancestor a on the path to species node x.
func (r *Reconciler) below(a, x int) int {
	for r.species.Node(x).Parent != a {
		x = r.species.Node(x).Parent
	}
	return x
}

// Reconcile maps every gene tree node onto the species tree. link maps
// gene leaf ids to species node ids, -1 for unknown species.
func (r *Reconciler) Reconcile(gene *tree.Tree, link []int) *Reconciliation {
	rec, _ := r.ReconcileBounded(gene, link, math.MaxInt)
	return rec
}

// ReconcileBounded is Reconcile which gives up as soon as the number of
// duplications exceeds bound. The second value is false in this case
// and the reconciliation is incomplete.
func (r *Reconciler) ReconcileBounded(gene *tree.Tree, link []int, bound int) (*Reconciliation, bool) {
	rec := &Reconciliation{
		Gene:    gene,
		Species: r.species,
		Ann:     make([]Annotation, gene.NNodes()),
	}
	nsp := r.nLeafIDs
	mapped := make([]int, 0, 2)
	for _, id := range gene.PostOrder() {
		node := gene.Node(id)
		ann := &rec.Ann[id]
		ann.Species = -1
		ann.species = bitset.New(nsp)

		if node.IsLeaf() {
			if node.LeafID >= 0 && node.LeafID < len(link) && link[node.LeafID] >= 0 {
				s := link[node.LeafID]
				ann.Species = s
				ann.species.InPlaceUnion(r.clade[s])
				// a leaf linked to an ancestral species may be anywhere
				// below it
				ann.passed = bitset.New(uint(len(r.species.Node(s).Children())))
				ann.passed.FlipRange(0, ann.passed.Len())
			}
			continue
		}

		mapped = mapped[:0]
		for _, c := range node.Children() {
			ann.species.InPlaceUnion(rec.Ann[c].species)
			if rec.Ann[c].Species >= 0 {
				mapped = append(mapped, c)
			}
		}
		switch len(mapped) {
		case 0:
			rec.Unclassified++
			continue
		case 1:
			ch := &rec.Ann[mapped[0]]
			ann.Species = ch.Species
			ann.passed = ch.passed
			rec.Unclassified++
			continue
		}

		s := rec.Ann[mapped[0]].Species
		for _, c := range mapped[1:] {
			s = r.lca(s, rec.Ann[c].Species)
		}
		ann.Species = s
		ann.Event = Speciation

		k := uint(len(r.species.Node(s).Children()))
		ann.passed = bitset.New(k)
		own := false
		overlap := false
		covers := make([]*bitset.BitSet, len(mapped))
		for i, c := range mapped {
			cs := rec.Ann[c].Species
			if cs == s {
				own = true
				covers[i] = rec.Ann[c].passed
			} else {
				covers[i] = bitset.New(k).Set(uint(r.pos[r.below(s, cs)]))
			}
			if ann.passed.IntersectionCardinality(covers[i]) > 0 {
				overlap = true
			}
			ann.passed.InPlaceUnion(covers[i])
		}
		if k > 2 {
			// multifurcating species node: only shared lineages mean a
			// duplication
			if overlap {
				ann.Event = Duplication
			}
		} else if own {
			ann.Event = Duplication
		}

		shared, all := r.sharedSpecies(rec, mapped)
		if all > 0 {
			ann.SIS = int(math.Round(100 * float64(shared) / float64(all)))
		}
		if ann.Event == Duplication {
			ann.Confirmed = shared > 0
			rec.Duplications++
			if rec.Duplications > bound {
				return rec, false
			}
		}
	}
	if rec.Unclassified > 0 {
		log.Debugf("%d gene tree nodes are unclassified", rec.Unclassified)
	}
	return rec, true
}

// sharedSpecies returns the number of species present in more than one
// child and the total number of species of the children.
func (r *Reconciler) sharedSpecies(rec *Reconciliation, children []int) (shared, all uint) {
	first := rec.Ann[children[0]].species
	union := first.Clone()
	inter := bitset.New(first.Len())
	for _, c := range children[1:] {
		s := rec.Ann[c].species
		inter.InPlaceUnion(union.Intersection(s))
		union.InPlaceUnion(s)
	}
	return inter.Count(), union.Count()
}

// Clear removes inferred losses.
func (rec *Reconciliation) Clear() {
	for i := range rec.Ann {
		rec.Ann[i].Lost = nil
	}
	rec.Losses = 0
}
