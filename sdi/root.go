package sdi

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"bitbucket.org/Davydov/genetree/tree"
)

// rootScore is the reconciliation cost of rooting at a branch.
type rootScore struct {
	node   int
	dups   int
	losses int
	cost   int
	height float64
	// done is false for skipped candidates.
	done bool
}

// less compares by the cost, tree height and finally by the node id.
func (s rootScore) less(o rootScore) bool {
	switch {
	case s.cost != o.cost:
		return s.cost < o.cost
	case s.height != o.height:
		return s.height < o.height
	}
	return s.node < o.node
}

// Cost returns the scalar rooting cost: duplications scaled to dominate
// the losses plus the losses.
func (r *Reconciler) Cost(rec *Reconciliation) int {
	return rec.Duplications*(rec.Gene.NNodes()*r.species.NNodes()+1) + rec.Losses
}

// Root finds the root of the gene tree minimizing the number of
// duplications, then losses, then tree height. Every branch is tried in
// parallel by threads workers (GOMAXPROCS if threads < 1). The gene tree
// is not modified; the result is a rooted copy with height-balanced root
// branches and its reconciliation with inferred losses.
func (r *Reconciler) Root(gene *tree.Tree, link []int, threads int) (*tree.Tree, *Reconciliation, error) {
	u := gene.Copy()
	if u.IsRooted() {
		if _, err := u.Unroot(); err != nil && !errors.Is(err, tree.ErrNotEnoughLeaves) {
			return nil, nil, err
		}
	}
	if u.NLeaves() < 3 {
		rec := r.Reconcile(u, link)
		r.InferLosses(rec)
		return u, rec, nil
	}
	if threads < 1 {
		threads = runtime.GOMAXPROCS(0)
	}

	scores := make([]rootScore, u.NNodes())
	// bound is the smallest number of duplications seen so far, it only
	// prunes candidates which cannot win
	bound := int64(math.MaxInt64)
	tasks := make(chan int, u.NNodes())
	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range tasks {
				scores[id] = r.tryRoot(u, link, id, &bound)
			}
		}()
	}
	for id := 0; id < u.NNodes(); id++ {
		if id != u.Root {
			tasks <- id
		}
	}
	close(tasks)
	wg.Wait()

	best := -1
	for id, s := range scores {
		if !s.done {
			continue
		}
		if best < 0 || s.less(scores[best]) {
			best = id
		}
	}
	if best < 0 {
		return nil, nil, fmt.Errorf("%w: no root candidates", tree.ErrBadNode)
	}
	log.Debugf("Best root above node %d: %d duplications, %d losses, height %g",
		best, scores[best].dups, scores[best].losses, scores[best].height)

	t := u.Copy()
	if err := t.RootAt(best); err != nil {
		return nil, nil, err
	}
	if _, err := t.SlideRoot(); err != nil {
		return nil, nil, err
	}
	rec := r.Reconcile(t, link)
	r.InferLosses(rec)
	return t, rec, nil
}

// tryRoot evaluates rooting of a copy of u above node id.
func (r *Reconciler) tryRoot(u *tree.Tree, link []int, id int, bound *int64) rootScore {
	t := u.Copy()
	if err := t.RootAt(id); err != nil {
		log.Errorf("Cannot root at %d: %v", id, err)
		return rootScore{node: id}
	}
	rec, ok := r.ReconcileBounded(t, link, int(atomic.LoadInt64(bound)))
	if !ok {
		return rootScore{node: id}
	}
	for {
		old := atomic.LoadInt64(bound)
		if int64(rec.Duplications) >= old || atomic.CompareAndSwapInt64(bound, old, int64(rec.Duplications)) {
			break
		}
	}
	losses := r.InferLosses(rec)
	h, err := t.SlideRoot()
	if err != nil {
		log.Errorf("Cannot slide root at %d: %v", id, err)
		return rootScore{node: id}
	}
	return rootScore{node: id, dups: rec.Duplications, losses: losses, cost: r.Cost(rec), height: h, done: true}
}
