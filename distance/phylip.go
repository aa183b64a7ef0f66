package distance

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// ReadPhylip reads a square distance matrix in PHYLIP format: the number
// of taxa followed by a name and n distances for every taxon.
func ReadPhylip(rd io.Reader) (*Matrix, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(bufio.ScanWords)

	next := func() (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: unexpected end of file", ErrInvalidMatrix)
		}
		return scanner.Text(), nil
	}

	tok, err := next()
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("%w: bad number of taxa %q", ErrInvalidMatrix, tok)
	}

	names := make([]string, n)
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		if names[i], err = next(); err != nil {
			return nil, err
		}
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			tok, err := next()
			if err != nil {
				return nil, err
			}
			if rows[i][j], err = strconv.ParseFloat(tok, 64); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMatrix, names[i], err)
			}
		}
	}
	return FromRows(names, rows)
}

// WritePhylip writes the matrix in PHYLIP format.
func (m *Matrix) WritePhylip(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", m.N())
	for i, name := range m.Names {
		bw.WriteString(name)
		for j := range m.Names {
			fmt.Fprintf(bw, " %.6f", m.At(i, j))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
