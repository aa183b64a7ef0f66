package tree

import (
	"math"
	"reflect"
	"sort"
	"strings"
	"testing"
)

const (
	tree2 = "((a:1,b:2):3,c:1);"
	tree3 = "(c:1,(a:1,b:2):3);"
	// unrooted five leaves tree
	tree4 = "((a:1,b:1):1,c:3,(d:1,e:2):1);"
)

func TestUnroot1(tst *testing.T) {
	t := mustParse(tst, tree2)

	b, err := t.Unroot()
	if err != nil {
		tst.Fatal("Error unrooting tree", err)
	}
	if t.String() != "(a:1.000000,b:2.000000,c:4.000000);" {
		tst.Error("Error unrooting tree, got:", t)
	}
	if t.NNodes() != 4 {
		tst.Error("Unrooting should remove a node, got", t.NNodes())
	}
	if err := t.Check(); err != nil {
		tst.Error(err)
	}

	if err = t.RootAt(b); err != nil {
		tst.Fatal("Error rooting tree", err)
	}
	if t.String() != "((a:1.000000,b:2.000000):2.000000,c:2.000000);" {
		tst.Error("Error rooting tree, got:", t)
	}
	if err := t.Check(); err != nil {
		tst.Error(err)
	}
}

func TestUnroot2(tst *testing.T) {
	t := mustParse(tst, tree3)

	b, err := t.Unroot()
	if err != nil {
		tst.Fatal("Error unrooting tree", err)
	}
	if t.String() != "(c:4.000000,a:1.000000,b:2.000000);" {
		tst.Error("Error unrooting tree, got:", t)
	}

	if err = t.RootAt(b); err != nil {
		tst.Fatal("Error rooting tree", err)
	}
	if t.String() != "(c:2.000000,(a:1.000000,b:2.000000):2.000000);" {
		tst.Error("Error rooting tree, got:", t)
	}
}

func TestUnrootTwoLeaves(tst *testing.T) {
	t := mustParse(tst, "(a:1,b:1);")
	if _, err := t.Unroot(); err == nil {
		tst.Error("Two leaves tree should not be unrooted")
	}
}

func TestDouble(tst *testing.T) {
	t := mustParse(tst, tree1)

	b, err := t.Unroot()
	if err != nil {
		tst.Fatal("Error unrooting tree", err)
	}
	tunr := t.TopologyString()

	if err = t.RootAt(b); err != nil {
		tst.Fatal("Error rooting tree", err)
	}
	tr := t.TopologyString()
	if tr != mustParse(tst, tree1).TopologyString() {
		tst.Error("Rooting did not restore the original topology:", tr)
	}

	b, err = t.Unroot()
	if err != nil {
		tst.Fatal("Error unrooting tree", err)
	}
	if t.TopologyString() != tunr {
		tst.Error("Multiple rooting/unrooting fail")
	}

	if err = t.RootAt(b); err != nil {
		tst.Fatal("Error rooting tree", err)
	}
	if t.TopologyString() != tr {
		tst.Error("Multiple rooting/unrooting fail")
	}
}

func TestRootAtEveryEdge(tst *testing.T) {
	t := mustParse(tst, tree4)
	total := 0.0
	for _, node := range t.Nodes() {
		total += node.Length()
	}
	for _, node := range t.Nodes() {
		if node.IsRoot() {
			continue
		}
		c := t.Copy()
		if err := c.RootAt(node.ID); err != nil {
			tst.Fatal(err)
		}
		if err := c.Check(); err != nil {
			tst.Fatal(err)
		}
		if !c.IsRooted() || c.NLeaves() != 5 || c.NNodes() != 9 {
			tst.Error("Wrong rooted tree:", c)
		}
		sum := 0.0
		for _, n := range c.Nodes() {
			sum += n.Length()
		}
		if math.Abs(sum-total) > 1e-9 {
			tst.Error("Rooting changed the total length:", sum, total)
		}
		// rooting a rooted tree again keeps the node number
		if err := c.RootAt(c.Leaves()[0]); err != nil {
			tst.Fatal(err)
		}
		if c.NNodes() != 9 {
			tst.Error("Rerooting rooted tree changed node number:", c.NNodes())
		}
	}
}

func TestSlideRoot(tst *testing.T) {
	t := mustParse(tst, "((a:1,b:1):0.5,c:5.5);")
	h, err := t.SlideRoot()
	if err != nil {
		tst.Fatal(err)
	}
	if math.Abs(h-3.5) > 1e-9 {
		tst.Error("Wrong height after sliding:", h)
	}
	root := t.RootNode()
	l0 := t.Node(root.Children()[0]).BranchLength
	l1 := t.Node(root.Children()[1]).BranchLength
	if math.Abs(l0-2.5) > 1e-9 || math.Abs(l1-3.5) > 1e-9 {
		tst.Error("Wrong root branches:", l0, l1)
	}

	// the root cannot slide beyond the branch
	t = mustParse(tst, "((a:10,b:1):0.5,c:0.5);")
	h, _ = t.SlideRoot()
	if math.Abs(h-10) > 1e-9 {
		tst.Error("Wrong height after sliding:", h)
	}
}

func TestRootByMinHeight(tst *testing.T) {
	t := mustParse(tst, "(a:1,b:1,(c:1,d:8):1);")
	h, err := t.RootByMinHeight()
	if err != nil {
		tst.Fatal(err)
	}
	// the longest path is d..a (10), the optimal root is in the middle
	if math.Abs(h-5) > 1e-9 {
		tst.Error("Wrong height:", h, t)
	}
	if math.Abs(t.Height()-h) > 1e-9 {
		tst.Error("Reported height differs from tree height")
	}
	d, _ := t.LeafByName("d")
	if t.Node(d).Parent != t.Root {
		tst.Error("Root should be on the d branch:", t)
	}
}

// flagged returns the sorted leaf names under every node with the flag.
func flagged(t *Tree, f Flag) []string {
	var res []string
	for _, node := range t.Nodes() {
		if node.Flag != f {
			continue
		}
		var names []string
		var rec func(id int)
		rec = func(id int) {
			if t.Node(id).IsLeaf() {
				names = append(names, t.Node(id).Name)
			}
			for _, c := range t.Node(id).Children() {
				rec(c)
			}
		}
		rec(node.ID)
		sort.Strings(names)
		res = append(res, strings.Join(names, ","))
	}
	sort.Strings(res)
	return res
}

func TestRootAtKeepsFlags(tst *testing.T) {
	t := mustParse(tst, "((A:1,C:1)#C:1,B:1,(D:1,E:1)90:1);")
	a, _ := t.LeafByName("A")
	if err := t.RootAt(a); err != nil {
		tst.Fatal(err)
	}
	// the split {A,C}|{B,D,E} is now below the node of C
	if got := flagged(t, Inherit); !reflect.DeepEqual(got, []string{"B,D,E"}) {
		tst.Error("Flag should stay on the constrained branch, got", got, t)
	}
	d, _ := t.LeafByName("D")
	if t.Node(t.Node(d).Parent).Support != 90 {
		tst.Error("Support should stay on its branch:", t)
	}
	if err := t.Check(); err != nil {
		tst.Error(err)
	}

	// rooting on the flagged branch marks both root sides
	t = mustParse(tst, "((A:1,C:1)#C:1,B:1,D:1);")
	c, _ := t.LeafByName("C")
	if err := t.RootAt(t.Node(c).Parent); err != nil {
		tst.Fatal(err)
	}
	if got := flagged(t, Inherit); !reflect.DeepEqual(got, []string{"A,C", "B,D"}) {
		tst.Error("Both root sides should be flagged, got", got, t)
	}
}

func TestUnrootKeepsFlags(tst *testing.T) {
	t := mustParse(tst, "((a:1,b:1):1,(c:1,d:1)#P:1);")
	x, err := t.Unroot()
	if err != nil {
		tst.Fatal(err)
	}
	if t.String() != "((a:1.000000,b:1.000000)#P:2.000000,c:1.000000,d:1.000000);" {
		tst.Error("Flag should move to the joined branch, got:", t)
	}
	if t.RootNode().Flag != NoFlag {
		tst.Error("Root should not be flagged")
	}
	if err := t.RootAt(x); err != nil {
		tst.Fatal(err)
	}
	if got := flagged(t, Temporary); !reflect.DeepEqual(got, []string{"a,b", "c,d"}) {
		tst.Error("Flag should be restored, got", got, t)
	}
}
