package sdi

import (
	"bufio"
	"fmt"
	"io"
)

// Relation is an evolutionary relation of two genes.
type Relation int

const (
	Unrelated Relation = iota
	Ortholog
	Paralog
)

func (rel Relation) String() string {
	switch rel {
	case Ortholog:
		return "ortholog"
	case Paralog:
		return "paralog"
	}
	return "unrelated"
}

// Pair is a relation of two genes at their last common ancestor.
type Pair struct {
	Relation Relation
	// Species is the species node of the common ancestor, -1 if unknown.
	Species int
	// Pseudo marks orthologs separated by an unconfirmed duplication.
	Pseudo bool
}

// Orthologs is a lower-triangular table of gene pair relations indexed
// by gene leaf ids.
type Orthologs struct {
	// Names are gene names by leaf id.
	Names []string
	rec   *Reconciliation
	pairs []Pair
}

func pairIndex(i, j int) int {
	if i < j {
		i, j = j, i
	}
	return i*(i-1)/2 + j
}

// At returns the relation of genes i and j, i != j.
func (o *Orthologs) At(i, j int) Pair {
	return o.pairs[pairIndex(i, j)]
}

// Orthologs classifies all gene pairs by the event at their last common
// ancestor: speciation gives orthologs, confirmed duplication gives
// paralogs and unconfirmed duplication gives pseudo-orthologs. It takes
// quadratic time and memory in the number of genes.
func (rec *Reconciliation) Orthologs() *Orthologs {
	gene := rec.Gene
	leaves := gene.Leaves()
	n := len(leaves)
	o := &Orthologs{
		Names: make([]string, n),
		rec:   rec,
		pairs: make([]Pair, n*(n-1)/2),
	}
	for i := range o.pairs {
		o.pairs[i].Species = -1
	}
	for leafID, id := range leaves {
		if id >= 0 {
			o.Names[leafID] = gene.Node(id).Name
		}
	}

	below := make([][]int, gene.NNodes())
	for _, id := range gene.PostOrder() {
		node := gene.Node(id)
		if node.IsLeaf() {
			below[id] = []int{node.LeafID}
			continue
		}
		ann := rec.Ann[id]
		p := Pair{Species: ann.Species}
		switch ann.Event {
		case Speciation:
			p.Relation = Ortholog
		case Duplication:
			if ann.Confirmed {
				p.Relation = Paralog
			} else {
				p.Relation = Ortholog
				p.Pseudo = true
			}
		default:
			p.Species = -1
		}
		children := node.Children()
		for a := 0; a < len(children); a++ {
			for b := 0; b < a; b++ {
				for _, x := range below[children[a]] {
					for _, y := range below[children[b]] {
						o.pairs[pairIndex(x, y)] = p
					}
				}
			}
		}
		for _, c := range children {
			below[id] = append(below[id], below[c]...)
			below[c] = nil
		}
	}
	return o
}

// Write writes the table, one gene pair per line: two gene names,
// relation, species of the common ancestor and a pseudo-ortholog mark.
func (o *Orthologs) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := range o.Names {
		for j := 0; j < i; j++ {
			p := o.At(i, j)
			pseudo := "N"
			if p.Pseudo {
				pseudo = "Y"
			}
			fmt.Fprintf(bw, "%s\t%s\t%v\t%s\t%s\n", o.Names[i], o.Names[j], p.Relation,
				o.rec.speciesName(p.Species), pseudo)
		}
	}
	return bw.Flush()
}
