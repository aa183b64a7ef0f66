package distance

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"bitbucket.org/Davydov/genetree/bio"
)

const phylip = `4
A 0 2 4 4
B 2 0 4 4
C 4 4 0 2
D 4 4 2 0
`

func TestReadPhylip(tst *testing.T) {
	m, err := ReadPhylip(bytes.NewBufferString(phylip))
	if err != nil {
		tst.Fatal(err)
	}
	if m.N() != 4 || m.Names[2] != "C" {
		tst.Fatal("Wrong matrix:", m.Names)
	}
	if m.At(0, 2) != 4 || m.At(3, 2) != 2 {
		tst.Error("Wrong values")
	}

	var b bytes.Buffer
	if err := m.WritePhylip(&b); err != nil {
		tst.Fatal(err)
	}
	m2, err := ReadPhylip(&b)
	if err != nil {
		tst.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if m.At(i, j) != m2.At(i, j) {
				tst.Error("Values differ after writing", i, j)
			}
		}
	}
}

func TestReadPhylipErrors(tst *testing.T) {
	for _, s := range []string{
		"",
		"0\n",
		"2\nA 0 1\nB 2 0\n",
		"2\nA 0 1\nB 1\n",
		"2\nA 0 x\nB 1 0\n",
	} {
		_, err := ReadPhylip(strings.NewReader(s))
		if !errors.Is(err, ErrInvalidMatrix) {
			tst.Errorf("Expected ErrInvalidMatrix for %q, got %v", s, err)
		}
	}
}

func TestClamp(tst *testing.T) {
	m := New([]string{"a", "b", "c"})
	m.Set(0, 1, -0.5)
	m.Set(0, 2, 1)
	m.Set(1, 2, 0)
	n, err := m.Clamp(Floor)
	if err != nil {
		tst.Fatal(err)
	}
	if n != 2 || m.At(1, 0) != Floor || m.At(2, 1) != Floor || m.At(0, 2) != 1 {
		tst.Error("Wrong clamping:", n)
	}
	m.Set(0, 2, math.NaN())
	if _, err := m.Clamp(Floor); !errors.Is(err, ErrInvalidMatrix) {
		tst.Error("NaN should be rejected")
	}
}

func TestFromAlignment(tst *testing.T) {
	ali := bio.Sequences{
		{Name: "a", Sequence: "ACGTACGTAC"},
		{Name: "b", Sequence: "ACGTACGTAA"},
		{Name: "c", Sequence: "AC-TACGTNN"},
	}
	m, err := FromAlignment(ali, P)
	if err != nil {
		tst.Fatal(err)
	}
	if math.Abs(m.At(0, 1)-0.1) > 1e-9 {
		tst.Error("Wrong p-distance:", m.At(0, 1))
	}
	if m.At(0, 2) != 0 {
		tst.Error("Gaps and ambiguities should be skipped:", m.At(0, 2))
	}
	m, _ = FromAlignment(ali, Poisson)
	if math.Abs(m.At(0, 1)+math.Log(0.9)) > 1e-9 {
		tst.Error("Wrong Poisson distance:", m.At(0, 1))
	}
	m, _ = FromAlignment(bio.Sequences{{Name: "a", Sequence: "AC"}, {Name: "b", Sequence: "GT"}}, JC)
	if m.At(0, 1) != MaxDistance {
		tst.Error("Saturated distance should be capped:", m.At(0, 1))
	}
}

func TestFromAlignmentLowerCase(tst *testing.T) {
	ali := bio.Sequences{
		{Name: "a", Sequence: "ACGTACGTAA"},
		{Name: "b", Sequence: "acgtnxgtac"},
	}
	m, err := FromAlignment(ali, P)
	if err != nil {
		tst.Fatal(err)
	}
	// n and x are skipped, lower case letters match upper case ones
	if math.Abs(m.At(0, 1)-0.125) > 1e-9 {
		tst.Error("Expected 1 difference in 8 sites, got", m.At(0, 1))
	}
	if !missing('n') || !missing('x') || missing('a') {
		tst.Error("Wrong lower case ambiguity characters")
	}
}
