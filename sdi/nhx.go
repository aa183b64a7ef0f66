package sdi

import (
	"strconv"
	"strings"

	"bitbucket.org/Davydov/genetree/tree"
)

// speciesName returns the name of a species node or its id for unnamed
// ancestral species.
func (rec *Reconciliation) speciesName(s int) string {
	if s < 0 {
		return "-"
	}
	if name := rec.Species.Node(s).Name; name != "" {
		return name
	}
	return "n" + strconv.Itoa(s)
}

// NHX returns reconciliation tags of a gene node: S (species), D
// (duplication Y/N), DD (unconfirmed duplication), SIS, E (lost
// species) and B (support).
func (rec *Reconciliation) NHX(node *tree.Node) string {
	ann := rec.Ann[node.ID]
	var b strings.Builder
	b.WriteString("&&NHX")
	if ann.Species >= 0 {
		b.WriteString(":S=" + rec.speciesName(ann.Species))
	}
	switch ann.Event {
	case Duplication:
		b.WriteString(":D=Y")
		if !ann.Confirmed {
			b.WriteString(":DD=Y")
		}
		b.WriteString(":SIS=" + strconv.Itoa(ann.SIS))
	case Speciation:
		b.WriteString(":D=N")
	}
	if len(ann.Lost) > 0 {
		b.WriteString(":E=$")
		for _, s := range ann.Lost {
			b.WriteString("-" + rec.speciesName(s))
		}
	}
	if node.Support >= 0 {
		b.WriteString(":B=" + strconv.Itoa(node.Support))
	}
	return b.String()
}

// String returns the gene tree in Newick format with NHX comments.
func (rec *Reconciliation) String() string {
	return rec.Gene.Format(rec.NHX)
}
