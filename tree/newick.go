package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type mode int

const (
	normal mode = iota
	length
	flag
)

// IsSpecial tests if the rune is a Newick punctuation character.
func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', '#', ';', ',', '[':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc returning Newick tokens. Comments in
// square brackets are returned as a single token.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if r == '[' {
			end := strings.IndexByte(string(data[start:]), ']')
			if end < 0 {
				if atEOF {
					return 0, nil, errors.New("unterminated comment")
				}
				return 0, nil, nil
			}
			return start + end + 1, data[start : start+end+1], nil
		}
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// parseComment reads NHX style tags. Only bootstrap support (B=) is
// used, the rest is ignored.
func parseComment(node *Node, text string) error {
	text = strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	if !strings.HasPrefix(text, "&&NHX") {
		return nil
	}
	for _, field := range strings.Split(text, ":")[1:] {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 || kv[0] != "B" {
			continue
		}
		b, err := strconv.Atoi(kv[1])
		if err != nil {
			return fmt.Errorf("bad support value %q: %w", kv[1], err)
		}
		node.Support = b
	}
	return nil
}

// ParseNewick reads a tree in Newick format. Nodes may be marked with
// "#C" (Inherit) or "#P" (Temporary) constraint flags. Numeric labels of
// internal nodes are read as support values. Leaves are numbered in the
// order of appearance.
func ParseNewick(rd io.Reader) (*Tree, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(NewickSplit)

	t := New()
	node := t.NewNode("")
	t.Root = node.ID

	md := normal
	finished := false

	for !finished && scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := t.NewNode("")
			t.AddChild(node.ID, subNode.ID)
			node = subNode
		case ",":
			if node.IsRoot() {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := t.NewNode("")
			t.AddChild(node.Parent, subNode.ID)
			node = subNode
		case ")":
			if node.IsRoot() {
				return nil, errors.New("brackets mismatch")
			}
			node = t.nodes[node.Parent]
		case "#":
			md = flag
		case ":":
			md = length
		case ";":
			finished = true
		default:
			if text[0] == '[' {
				if err := parseComment(node, text); err != nil {
					return nil, err
				}
				continue
			}
			switch md {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
			case flag:
				switch text {
				case "C":
					node.Flag = Inherit
				case "P":
					node.Flag = Temporary
				default:
					return nil, fmt.Errorf("unknown node flag %q", text)
				}
			default:
				if !node.IsLeaf() {
					if b, err := strconv.Atoi(text); err == nil {
						node.Support = b
						break
					}
				}
				node.Name = text
			}
			md = normal
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !finished {
		return nil, errors.New("tree should end with ';'")
	}
	if node.ID != t.Root {
		return nil, errors.New("brackets mismatch")
	}

	t.AssignLeafIDs()
	t.Init()
	return t, nil
}

// Comment returns a comment to be placed after a node, e.g. an NHX
// annotation. Empty comments are omitted.
type Comment func(node *Node) string

// String returns the tree in Newick format with branch lengths and
// support values.
func (t *Tree) String() string {
	return t.Format(nil)
}

// Format returns the tree in Newick format, comment is called for every
// node if not nil.
func (t *Tree) Format(comment Comment) string {
	var b strings.Builder
	t.format(&b, t.Root, comment)
	b.WriteByte(';')
	return b.String()
}

func (t *Tree) format(b *strings.Builder, id int, comment Comment) {
	node := t.nodes[id]
	if !node.IsLeaf() {
		b.WriteByte('(')
		for i, c := range node.children {
			if i != 0 {
				b.WriteByte(',')
			}
			t.format(b, c, comment)
		}
		b.WriteByte(')')
	}
	b.WriteString(node.Name)
	if !node.IsLeaf() && node.Name == "" && node.Support >= 0 {
		b.WriteString(strconv.Itoa(node.Support))
	}
	if node.Flag != NoFlag {
		b.WriteString("#" + node.Flag.String())
	}
	if node.HasLength() {
		fmt.Fprintf(b, ":%0.6f", node.BranchLength)
	}
	if comment != nil {
		if s := comment(node); s != "" {
			b.WriteString("[" + s + "]")
		}
	}
}

// TopologyString returns a canonical Newick string without branch
// lengths: children are sorted by their string. Two trees with the same
// rooted topology and leaf names have equal topology strings.
func (t *Tree) TopologyString() string {
	var rec func(id int) string
	rec = func(id int) string {
		node := t.nodes[id]
		if node.IsLeaf() {
			return node.Name
		}
		parts := make([]string, len(node.children))
		for i, c := range node.children {
			parts[i] = rec(c)
		}
		sort.Strings(parts)
		return "(" + strings.Join(parts, ",") + ")"
	}
	return rec(t.Root) + ";"
}
