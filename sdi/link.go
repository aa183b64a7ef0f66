package sdi

import (
	"fmt"
	"strings"

	"bitbucket.org/Davydov/genetree/tree"
)

// SpeciesName returns the species part of a gene name: the suffix after
// the last underscore, or the whole name.
func SpeciesName(gene string) string {
	if i := strings.LastIndexByte(gene, '_'); i >= 0 {
		return gene[i+1:]
	}
	return gene
}

// LinkNames links genes to species tree nodes by the species name
// suffix; the result is indexed like names. Both leaves and named
// internal species nodes can be linked. With strict set an unknown
// species is an error, otherwise the gene is left unlinked (-1).
func LinkNames(names []string, species *tree.Tree, strict bool) ([]int, error) {
	byName := make(map[string]int, species.NNodes())
	for _, node := range species.Nodes() {
		if node.Name != "" {
			byName[node.Name] = node.ID
		}
	}
	link := make([]int, len(names))
	unknown := 0
	for i, name := range names {
		link[i] = -1
		if name == "" {
			continue
		}
		s, ok := byName[SpeciesName(name)]
		if !ok {
			// the gene can be named after its species
			s, ok = byName[name]
		}
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSpecies, name)
			}
			unknown++
			continue
		}
		link[i] = s
	}
	if unknown > 0 {
		log.Warningf("%d genes have unknown species", unknown)
	}
	return link, nil
}

// LinkBySuffix links gene tree leaves by their names, the result is
// indexed by leaf ids.
func LinkBySuffix(gene, species *tree.Tree, strict bool) ([]int, error) {
	leaves := gene.Leaves()
	names := make([]string, len(leaves))
	for leafID, id := range leaves {
		if id >= 0 {
			names[leafID] = gene.Node(id).Name
		}
	}
	return LinkNames(names, species, strict)
}
