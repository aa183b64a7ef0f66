package tree

import (
	"bytes"
	"testing"
)

const (
	tree1 = "((((a001:0.242690,a002:0.268555)#C:0.073424,a003:0.252510):0.198740,((((((a004:0.001000,a005:0.014869):0.045007,a006:0.050606):0.056908,a007:0.166439):0.023217,a008:0.094788):0.429852,a009:0.558116):0.130317,(a010:0.009332,a011:0.024271):0.315124):0.217376):0.464470,a012:0.144369);"
)

func mustParse(tst *testing.T, s string) *Tree {
	t, err := ParseNewick(bytes.NewBufferString(s))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	return t
}

func TestParse(tst *testing.T) {
	t := mustParse(tst, tree1)
	if t.NLeaves() != 12 {
		tst.Error("Wrong number of leaves:", t.NLeaves())
	}
	if t.NNodes() != 23 {
		tst.Error("Wrong number of nodes:", t.NNodes())
	}
	if err := t.Check(); err != nil {
		tst.Error(err)
	}
	for i, id := range t.Leaves() {
		if t.Node(id).LeafID != i {
			tst.Error("Leaf index mismatch", i, id)
		}
	}
	id, ok := t.LeafByName("a001")
	if !ok || t.Node(id).LeafID != 0 {
		tst.Error("a001 should be the first leaf")
	}
	flagged := 0
	for _, node := range t.Nodes() {
		if node.Flag == Inherit {
			flagged++
		}
	}
	if flagged != 1 {
		tst.Error("Expected one flagged node, got", flagged)
	}
	if t.String() != tree1 {
		tst.Errorf("Round trip failed:\n%s\n%s", t, tree1)
	}
}

func TestParseErrors(tst *testing.T) {
	for _, s := range []string{
		"((a,b),c",
		"(a,b));",
		"(a,b),c;",
		"(a:x,b);",
		"(a#Q,b);",
	} {
		if _, err := ParseNewick(bytes.NewBufferString(s)); err == nil {
			tst.Error("Expected parse error for", s)
		}
	}
}

func TestParseSupport(tst *testing.T) {
	t := mustParse(tst, "((a,b)95:1,(c,d)[&&NHX:B=40]:1);")
	supports := []int{}
	for _, id := range t.PostOrder() {
		node := t.Node(id)
		if !node.IsLeaf() && !node.IsRoot() {
			supports = append(supports, node.Support)
		}
	}
	if len(supports) != 2 || supports[0] != 95 || supports[1] != 40 {
		tst.Error("Wrong supports:", supports)
	}
}

func TestInitIdempotent(tst *testing.T) {
	t := mustParse(tst, tree1)
	t.Init()
	finish := make([]int, t.NNodes())
	nLeaves := make([]int, t.NNodes())
	for i, node := range t.Nodes() {
		finish[i] = node.Finish
		nLeaves[i] = node.NLeaves
	}
	t.Init()
	for i, node := range t.Nodes() {
		if node.Finish != finish[i] || node.NLeaves != nLeaves[i] {
			tst.Error("Init is not idempotent at node", i)
		}
	}
	root := t.RootNode()
	if root.Finish != t.NNodes()-1 || root.NLeaves != 12 {
		tst.Error("Wrong root finish time or leaf count:", root.LongString())
	}
}

func TestCopy(tst *testing.T) {
	t := mustParse(tst, tree1)
	t1 := t.Copy()
	t2 := t1.Copy()

	tNodes := t.Nodes()
	t1Nodes := t1.Nodes()
	t2Nodes := t2.Nodes()

	if len(tNodes) != len(t1Nodes) || len(t1Nodes) != len(t2Nodes) {
		tst.Fatal("node length differ between copies")
	}

	for i := 0; i < len(tNodes); i++ {
		if tNodes[i] == t1Nodes[i] || t1Nodes[i] == t2Nodes[i] {
			tst.Error("node pointers match between trees")
		}
		if tNodes[i].BranchLength != t2Nodes[i].BranchLength {
			tst.Error("node length differ")
		}
		if tNodes[i].Name != t2Nodes[i].Name {
			tst.Error("node name differ")
		}
		if tNodes[i].Flag != t2Nodes[i].Flag {
			tst.Error("node flag differ")
		}
	}

	for _, node := range t1.Nodes() {
		node.BranchLength = 2
	}
	for i := range tNodes {
		if t.Node(i).BranchLength == t1.Node(i).BranchLength {
			tst.Error("node length still match after change")
		}
	}

	if err := t1.RootAt(3); err != nil {
		tst.Fatal(err)
	}
	if t.String() != tree1 {
		tst.Error("Rerooting a copy changed the original tree")
	}
}
