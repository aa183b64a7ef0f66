package distance

import (
	"fmt"
	"math"

	"bitbucket.org/Davydov/genetree/bio"
)

// Method is a pairwise distance computed from an alignment.
type Method int

const (
	// P is the proportion of differing sites.
	P Method = iota
	// Poisson is the Poisson corrected distance, -ln(1-p).
	Poisson
	// JC is the Jukes-Cantor distance for nucleotides.
	JC
)

// MaxDistance is used for pairs which are too divergent for the
// correction or share no informative sites.
const MaxDistance = 10.0

// ParseMethod returns a method by name.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "p":
		return P, nil
	case "poisson":
		return Poisson, nil
	case "jc":
		return JC, nil
	}
	return P, fmt.Errorf("unknown distance method: %s", s)
}

// upper folds an ASCII letter to upper case.
func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// missing tests for gap and ambiguity characters, case-insensitive.
func missing(c byte) bool {
	switch upper(c) {
	case '-', '.', '?', 'N', 'X', '*':
		return true
	}
	return false
}

// FromAlignment computes pairwise distances. Sites with a gap or an
// ambiguity character in either sequence are skipped for the pair.
func FromAlignment(ali bio.Sequences, method Method) (*Matrix, error) {
	if _, err := ali.Length(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
	}
	m := New(ali.Names())
	for i := range ali {
		for j := 0; j < i; j++ {
			m.Set(i, j, pairDistance(ali[i].Sequence, ali[j].Sequence, method))
		}
	}
	return m, nil
}

func pairDistance(a, b string, method Method) float64 {
	n, diff := 0, 0
	for k := 0; k < len(a); k++ {
		if missing(a[k]) || missing(b[k]) {
			continue
		}
		n++
		if upper(a[k]) != upper(b[k]) {
			diff++
		}
	}
	if n == 0 {
		return MaxDistance
	}
	p := float64(diff) / float64(n)
	var d float64
	switch method {
	case Poisson:
		d = -math.Log(1 - p)
	case JC:
		d = -0.75 * math.Log(1-4*p/3)
	default:
		d = p
	}
	if math.IsNaN(d) || d > MaxDistance {
		return MaxDistance
	}
	return d
}
