// Package pipeline runs the gene tree inference chain: distances,
// constrained neighbor joining, rooting by reconciliation with the
// species tree, loss inference and bootstrap.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/genetree/bio"
	"bitbucket.org/Davydov/genetree/bootstrap"
	"bitbucket.org/Davydov/genetree/checkpoint"
	"bitbucket.org/Davydov/genetree/distance"
	"bitbucket.org/Davydov/genetree/nj"
	"bitbucket.org/Davydov/genetree/sdi"
	"bitbucket.org/Davydov/genetree/tree"
)

var log = logging.MustGetLogger("pipeline")

// ErrNoBootstrap is returned when bootstrap is requested for input which
// cannot be resampled.
var ErrNoBootstrap = errors.New("bootstrap needs an alignment")

// Settings are the pipeline parameters.
type Settings struct {
	// Constraints restrict neighbor joining.
	Constraints []*tree.Tree
	// ConstrainRoot applies constraints at the root, see nj.Prepare.
	ConstrainRoot bool
	// Species is the species tree. Without it trees are rooted by the
	// minimal height and not reconciled.
	Species *tree.Tree
	// StrictSpecies makes unknown species an error.
	StrictSpecies bool
	// Method computes distances from an alignment.
	Method distance.Method
	// Threads is the number of workers.
	Threads int

	Bootstrap  int
	Mode       bootstrap.Mode
	Budget     time.Duration
	Seed       int64
	Sentinel   int
	Checkpoint *checkpoint.CheckpointIO
}

// Result is the pipeline output.
type Result struct {
	Tree *tree.Tree
	// Reconciliation is nil without a species tree.
	Reconciliation *sdi.Reconciliation
	// Bootstrap is nil without bootstrap.
	Bootstrap *bootstrap.Result
}

// Pipeline builds trees for a fixed set of taxa.
type Pipeline struct {
	s     Settings
	names []string
	cons  *nj.Constraints
	rec   *sdi.Reconciler
	link  []int
}

// New prepares constraints and the species tree for the taxa.
func New(names []string, s Settings) (*Pipeline, error) {
	p := &Pipeline{
		s:     s,
		names: append([]string(nil), names...),
		cons:  nj.Prepare(names, s.Constraints, s.ConstrainRoot),
	}
	if s.Species != nil {
		var err error
		if p.rec, err = sdi.NewReconciler(s.Species); err != nil {
			return nil, err
		}
		if p.link, err = sdi.LinkNames(names, s.Species, s.StrictSpecies); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Build reconstructs a rooted tree from distances. With a species tree
// the tree is rooted by the reconciliation cost and the reconciliation
// with inferred losses is returned. threads is passed to the rooting.
func (p *Pipeline) Build(m *distance.Matrix, threads int) (*tree.Tree, *sdi.Reconciliation, error) {
	if len(m.Names) != len(p.names) {
		return nil, nil, fmt.Errorf("%w: %d taxa instead of %d", distance.ErrInvalidMatrix, len(m.Names), len(p.names))
	}
	for i, name := range m.Names {
		if name != p.names[i] {
			return nil, nil, fmt.Errorf("%w: taxon %d is %s instead of %s", distance.ErrInvalidMatrix, i, name, p.names[i])
		}
	}
	t, err := nj.BuildPrepared(m, p.cons)
	if err != nil {
		return nil, nil, err
	}

	var rec *sdi.Reconciliation
	switch {
	case p.rec == nil:
		if !t.IsRooted() {
			if _, err := t.RootByMinHeight(); err != nil {
				return nil, nil, err
			}
		}
	case t.IsRooted() && p.cons.Rooted():
		// the root is fixed by the constraints
		rec = p.rec.Reconcile(t, p.link)
		p.rec.InferLosses(rec)
	default:
		if t, rec, err = p.rec.Root(t, p.link, threads); err != nil {
			return nil, nil, err
		}
	}
	// build-only marks
	t.ClearTemporary()
	return t, rec, nil
}

// RunMatrix builds the tree from a distance matrix. A matrix cannot be
// resampled, so bootstrap is not available.
func (p *Pipeline) RunMatrix(m *distance.Matrix) (*Result, error) {
	if p.s.Bootstrap > 0 {
		return nil, ErrNoBootstrap
	}
	t, rec, err := p.Build(m, p.s.Threads)
	if err != nil {
		return nil, err
	}
	p.report(rec)
	return &Result{Tree: t, Reconciliation: rec}, nil
}

// RunAlignment builds the tree from an alignment and computes bootstrap
// support if requested.
func (p *Pipeline) RunAlignment(ctx context.Context, ali bio.Sequences) (*Result, error) {
	m, err := distance.FromAlignment(ali, p.s.Method)
	if err != nil {
		return nil, err
	}
	t, rec, err := p.Build(m, p.s.Threads)
	if err != nil {
		return nil, err
	}
	p.report(rec)
	res := &Result{Tree: t, Reconciliation: rec}
	if p.s.Bootstrap <= 0 {
		return res, nil
	}

	recipe := &AlignmentRecipe{p: p, ali: ali}
	res.Bootstrap, err = bootstrap.Run(ctx, t, recipe, bootstrap.Options{
		Replicates: p.s.Bootstrap,
		Mode:       p.s.Mode,
		Threads:    p.s.Threads,
		Budget:     p.s.Budget,
		Seed:       p.s.Seed,
		Sentinel:   p.s.Sentinel,
		Checkpoint: p.s.Checkpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return res, nil
}

func (p *Pipeline) report(rec *sdi.Reconciliation) {
	if rec == nil {
		return
	}
	log.Infof("Reconciliation: %d duplications, %d losses", rec.Duplications, rec.Losses)
	if rec.Unclassified > 0 {
		log.Warningf("%d nodes are unclassified", rec.Unclassified)
	}
}

// AlignmentRecipe rebuilds the tree from alignments with resampled
// columns.
type AlignmentRecipe struct {
	p   *Pipeline
	ali bio.Sequences
}

// Replicate runs the chain on a resampled alignment. The rooting is
// sequential as replicates run in parallel.
func (r *AlignmentRecipe) Replicate(rng *rand.Rand) (*tree.Tree, error) {
	ali, err := r.ali.Resample(rng)
	if err != nil {
		return nil, err
	}
	log.Debugf("Resampled alignment:\n%v", ali)
	m, err := distance.FromAlignment(ali, r.p.s.Method)
	if err != nil {
		return nil, err
	}
	t, _, err := r.p.Build(m, 1)
	return t, err
}
