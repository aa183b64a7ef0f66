package bio

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

const fasta = `>human1 some description
ACGTACGTAC
GT
>mouse1
ACGTTCGTAC
GA
`

func TestParseFasta(tst *testing.T) {
	seqs, err := ParseFasta(bytes.NewBufferString(fasta))
	if err != nil {
		tst.Fatal(err)
	}
	if len(seqs) != 2 {
		tst.Fatal("Expected two sequences, got", len(seqs))
	}
	if seqs[0].Name != "human1" || seqs[0].Sequence != "ACGTACGTACGT" {
		tst.Error("Wrong first sequence:", seqs[0])
	}
	l, err := seqs.Length()
	if err != nil || l != 12 {
		tst.Error("Wrong length", l, err)
	}
	if _, err := ParseFasta(bytes.NewBufferString("ACGT\n>a\nAC\n")); err == nil {
		tst.Error("Sequence without a name should fail")
	}
}

func TestLengthMismatch(tst *testing.T) {
	seqs := Sequences{{"a", "ACGT"}, {"b", "ACG"}}
	if _, err := seqs.Length(); err == nil {
		tst.Error("Length mismatch is not detected")
	}
}

func TestResample(tst *testing.T) {
	seqs := Sequences{{"a", "AAAACCCC"}, {"b", "TTTTGGGG"}}
	rng := rand.New(rand.NewSource(1))
	res, err := seqs.Resample(rng)
	if err != nil {
		tst.Fatal(err)
	}
	if len(res) != 2 || len(res[0].Sequence) != 8 {
		tst.Fatal("Wrong replicate shape")
	}
	// columns are sampled together
	for j := 0; j < 8; j++ {
		a, b := res[0].Sequence[j], res[1].Sequence[j]
		if (a == 'A' && b != 'T') || (a == 'C' && b != 'G') {
			tst.Error("Columns are broken at", j)
		}
	}
	res2, _ := seqs.Resample(rand.New(rand.NewSource(1)))
	if res2.String() != res.String() {
		tst.Error("Same seed should give the same replicate")
	}
}

func TestFastaOutput(tst *testing.T) {
	long := strings.Repeat("ACGT", 40)
	seqs := Sequences{{"a", long}, {"b", long[:10]}, {"empty", ""}}
	out := seqs.String()
	for _, line := range strings.Split(out, "\n") {
		if len(line) > fastaWidth {
			tst.Error("Line is too long:", line)
		}
	}
	if !strings.HasPrefix(out, ">a\n"+long[:fastaWidth]+"\n") {
		tst.Error("Wrong output start:", out)
	}
	if strings.HasSuffix(out, "\n") {
		tst.Error("Output should not end with a newline")
	}

	res, err := ParseFasta(strings.NewReader(out))
	if err != nil {
		tst.Fatal(err)
	}
	if len(res) != 3 || res[0].Sequence != long || res[1].Sequence != long[:10] || res[2].Name != "empty" {
		tst.Error("Output cannot be read back:", res)
	}
}
