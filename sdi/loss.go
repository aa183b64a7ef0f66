package sdi

import (
	"github.com/bits-and-blooms/bitset"
)

// InferLosses finds species lineages which lost a gene copy and appends
// them to Lost of the gene node below the loss. Only species with genes
// elsewhere in the gene tree are reported. It returns the number of
// losses found by this call; calling it twice without Clear counts the
// losses twice.
func (r *Reconciler) InferLosses(rec *Reconciliation) int {
	gene := rec.Gene
	present := rec.Ann[gene.Root].species
	if present == nil {
		return 0
	}
	isPresent := func(w int) bool {
		return r.clade[w].IntersectionCardinality(present) > 0
	}
	// lostChildren appends present children of species node s outside
	// of covered.
	lostChildren := func(lost []int, s int, covered *bitset.BitSet) []int {
		for i, w := range r.species.Node(s).Children() {
			if covered != nil && covered.Test(uint(i)) {
				continue
			}
			if isPresent(w) {
				lost = append(lost, w)
			}
		}
		return lost
	}

	total := 0
	for _, id := range gene.PostOrder() {
		node := gene.Node(id)
		ann := &rec.Ann[id]
		n := len(ann.Lost)

		// lineages not covered by a speciation at a multifurcating
		// species node; nested nodes at the same species are covered
		// by the topmost one
		if ann.Event == Speciation && len(r.species.Node(ann.Species).Children()) > 2 &&
			(node.IsRoot() || rec.Ann[node.Parent].Species != ann.Species) {
			ann.Lost = lostChildren(ann.Lost, ann.Species, ann.passed)
		}

		if !node.IsRoot() && ann.Species >= 0 {
			p := &rec.Ann[node.Parent]
			sv, sp := ann.Species, p.Species
			switch {
			case p.Event == Unclassified:
			case sv == sp:
				if p.Event == Duplication {
					ann.Lost = lostChildren(ann.Lost, sv, ann.passed)
				}
			default:
				x := sv
				for a := r.species.Node(sv).Parent; a != sp; a = r.species.Node(a).Parent {
					for _, w := range r.species.Node(a).Children() {
						if w != x && isPresent(w) {
							ann.Lost = append(ann.Lost, w)
						}
					}
					x = a
				}
				if p.Event == Duplication {
					for _, w := range r.species.Node(sp).Children() {
						if w != x && isPresent(w) {
							ann.Lost = append(ann.Lost, w)
						}
					}
				}
			}
		}
		total += len(ann.Lost) - n
	}
	rec.Losses += total
	return total
}
