package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/genetree/bio"
	"bitbucket.org/Davydov/genetree/bootstrap"
	"bitbucket.org/Davydov/genetree/distance"
	"bitbucket.org/Davydov/genetree/tree"
)

var names = []string{"a1_a", "b1_b", "c1_c", "d1_d"}

func parse(t *testing.T, s string) *tree.Tree {
	tr, err := tree.ParseNewick(strings.NewReader(s))
	require.NoError(t, err)
	return tr
}

func matrix(t *testing.T) *distance.Matrix {
	m, err := distance.FromRows(names, [][]float64{
		{0, 2, 4, 4},
		{2, 0, 4, 4},
		{4, 4, 0, 2},
		{4, 4, 2, 0},
	})
	require.NoError(t, err)
	return m
}

func topology(t *testing.T, s string) string {
	return parse(t, s).TopologyString()
}

func TestMinHeight(t *testing.T) {
	p, err := New(names, Settings{})
	require.NoError(t, err)
	res, err := p.RunMatrix(matrix(t))
	require.NoError(t, err)
	require.True(t, res.Tree.IsRooted())
	require.Nil(t, res.Reconciliation)
	require.Equal(t, 4, res.Tree.NLeaves())
	require.InDelta(t, 2.0, res.Tree.Height(), 1e-9)
}

func TestSpecies(t *testing.T) {
	p, err := New(names, Settings{Species: parse(t, "((a,b),(c,d));"), Threads: 2})
	require.NoError(t, err)
	res, err := p.RunMatrix(matrix(t))
	require.NoError(t, err)
	require.Equal(t, topology(t, "((a1_a,b1_b),(c1_c,d1_d));"), res.Tree.TopologyString())
	require.Equal(t, 0, res.Reconciliation.Duplications)
	require.Equal(t, 0, res.Reconciliation.Losses)
	require.Contains(t, res.Reconciliation.String(), "D=N")
}

func TestRootConstraint(t *testing.T) {
	cons := parse(t, "((a1_a,c1_c),(b1_b,d1_d));")
	p, err := New(names, Settings{
		Species:       parse(t, "((a,b),(c,d));"),
		Constraints:   []*tree.Tree{cons},
		ConstrainRoot: true,
	})
	require.NoError(t, err)
	res, err := p.RunMatrix(matrix(t))
	require.NoError(t, err)
	require.Equal(t, cons.TopologyString(), res.Tree.TopologyString())
	require.Equal(t, 1, res.Reconciliation.Duplications)
}

func TestErrors(t *testing.T) {
	p, err := New(names, Settings{Bootstrap: 10})
	require.NoError(t, err)
	_, err = p.RunMatrix(matrix(t))
	require.True(t, errors.Is(err, ErrNoBootstrap))

	p, err = New([]string{"x", "y", "z", "w"}, Settings{})
	require.NoError(t, err)
	_, _, err = p.Build(matrix(t), 1)
	require.True(t, errors.Is(err, distance.ErrInvalidMatrix))

	_, err = New(names, Settings{Species: parse(t, "(a,b);"), StrictSpecies: true})
	require.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	ali := bio.Sequences{
		{Name: "a1_a", Sequence: "AAAAAAAAAAGGGGGGGGGG"},
		{Name: "b1_b", Sequence: "AAAAAAAAAAGGGGGGGGGG"},
		{Name: "c1_c", Sequence: "CCCCCCCCCCGGGGGGGGGG"},
		{Name: "d1_d", Sequence: "CCCCCCCCCCGGGGGGGGGG"},
	}
	p, err := New(ali.Names(), Settings{
		Species:   parse(t, "((a,b),(c,d));"),
		Method:    distance.P,
		Bootstrap: 20,
		Mode:      bootstrap.Branch,
		Threads:   2,
		Seed:      7,
	})
	require.NoError(t, err)
	res, err := p.RunAlignment(context.Background(), ali)
	require.NoError(t, err)
	require.Equal(t, topology(t, "((a1_a,b1_b),(c1_c,d1_d));"), res.Tree.TopologyString())
	require.Equal(t, 20, res.Bootstrap.Completed)
	require.Equal(t, 100.0, res.Bootstrap.Summary.Mean)
	for _, id := range res.Tree.RootNode().Children() {
		require.Equal(t, 100, res.Tree.Node(id).Support)
	}
	require.Contains(t, res.Reconciliation.String(), "B=100")
}

// flagged returns leaf sets of the nodes marked with the flag.
func flagged(tr *tree.Tree, f tree.Flag) []string {
	var res []string
	for _, node := range tr.Nodes() {
		if node.Flag != f {
			continue
		}
		var names []string
		var rec func(id int)
		rec = func(id int) {
			if tr.Node(id).IsLeaf() {
				names = append(names, tr.Node(id).Name)
			}
			for _, c := range tr.Node(id).Children() {
				rec(c)
			}
		}
		rec(node.ID)
		sort.Strings(names)
		res = append(res, strings.Join(names, ","))
	}
	return res
}

func TestConstraintFlags(t *testing.T) {
	for _, species := range []string{"", "((a,b),(c,d));"} {
		s := Settings{}
		if species != "" {
			s.Species = parse(t, species)
		}

		s.Constraints = []*tree.Tree{parse(t, "((a1_a,c1_c),b1_b,d1_d);")}
		p, err := New(names, s)
		require.NoError(t, err)
		res, err := p.RunMatrix(matrix(t))
		require.NoError(t, err)
		require.True(t, res.Tree.IsRooted())
		require.Empty(t, flagged(res.Tree, tree.Temporary), "temporary marks are removed")
		require.Empty(t, flagged(res.Tree, tree.Inherit))

		s.Constraints = []*tree.Tree{parse(t, "((a1_a,c1_c)#C,b1_b,d1_d);")}
		p, err = New(names, s)
		require.NoError(t, err)
		res, err = p.RunMatrix(matrix(t))
		require.NoError(t, err)
		clusters := flagged(res.Tree, tree.Inherit)
		require.NotEmpty(t, clusters)
		for _, c := range clusters {
			// either side of the constrained split after rooting
			require.Contains(t, []string{"a1_a,c1_c", "b1_b,d1_d"}, c, res.Tree.String())
		}
	}
}
