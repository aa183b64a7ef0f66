// Package bio provides sequence alignments: FASTA input/output and
// bootstrap resampling of alignment columns.
package bio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
)

// Sequence is a type which is intended for storing nucleotide or
// protein sequence with it's name.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences. E.g. a sequence alignment.
type Sequences []Sequence

// ParseFasta parses FASTA sequences from a reader.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 10)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			seq := Sequence{Name: strings.Fields(line[1:] + " ")[0]}
			seqs = append(seqs, seq)
		} else {
			if len(seqs) == 0 {
				return nil, errors.New("sequence w/o prefix")
			}
			line = strings.ToUpper(strings.Replace(line, " ", "", -1))
			seqs[len(seqs)-1].Sequence += line
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return
}

// Length returns the alignment length. It returns an error if sequences
// have different lengths.
func (seqs Sequences) Length() (int, error) {
	if len(seqs) == 0 {
		return 0, errors.New("empty alignment")
	}
	l := len(seqs[0].Sequence)
	for _, seq := range seqs[1:] {
		if len(seq.Sequence) != l {
			return 0, fmt.Errorf("sequence %s length %d differs from %d", seq.Name, len(seq.Sequence), l)
		}
	}
	return l, nil
}

// Names returns the sequence names.
func (seqs Sequences) Names() []string {
	names := make([]string, len(seqs))
	for i, seq := range seqs {
		names[i] = seq.Name
	}
	return names
}

// Resample returns a bootstrap replicate: an alignment of the same
// length built from columns sampled with replacement.
func (seqs Sequences) Resample(rng *rand.Rand) (Sequences, error) {
	l, err := seqs.Length()
	if err != nil {
		return nil, err
	}
	if l == 0 {
		return nil, errors.New("zero length alignment")
	}
	cols := make([]int, l)
	for i := range cols {
		cols[i] = rng.Intn(l)
	}
	res := make(Sequences, len(seqs))
	buf := make([]byte, l)
	for i, seq := range seqs {
		for j, c := range cols {
			buf[j] = seq.Sequence[c]
		}
		res[i] = Sequence{Name: seq.Name, Sequence: string(buf)}
	}
	return res, nil
}

// fastaWidth is the line width of written sequences.
const fastaWidth = 60

// String formats the alignment as FASTA, sequences are split into
// lines of fastaWidth characters.
func (seqs Sequences) String() string {
	var b strings.Builder
	for i, seq := range seqs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(">" + seq.Name)
		for rest := seq.Sequence; len(rest) > 0; {
			n := fastaWidth
			if n > len(rest) {
				n = len(rest)
			}
			b.WriteByte('\n')
			b.WriteString(rest[:n])
			rest = rest[n:]
		}
	}
	return b.String()
}
