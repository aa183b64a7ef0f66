package bootstrap

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/genetree/checkpoint"
	"bitbucket.org/Davydov/genetree/tree"
)

// Recipe rebuilds a tree from resampled data. Replicate is called
// concurrently, each call with its own random generator.
type Recipe interface {
	Replicate(rng *rand.Rand) (*tree.Tree, error)
}

// RecipeFunc is a function implementing Recipe.
type RecipeFunc func(rng *rand.Rand) (*tree.Tree, error)

// Replicate calls f.
func (f RecipeFunc) Replicate(rng *rand.Rand) (*tree.Tree, error) {
	return f(rng)
}

// Options are bootstrap driver settings.
type Options struct {
	Replicates int
	Mode       Mode
	// Threads is the number of concurrent replicates, GOMAXPROCS if
	// less than one.
	Threads int
	// Budget limits the running time, no limit if zero. Replicates not
	// started within the budget are skipped.
	Budget time.Duration
	// Seed of replicate i is Seed+i.
	Seed int64
	// Sentinel is the support value used when no replicate finished.
	Sentinel int
	// Checkpoint saves progress and resumes from it, can be nil.
	Checkpoint *checkpoint.CheckpointIO
}

// Result is the outcome of a bootstrap run.
type Result struct {
	Requested int `json:"requested"`
	Completed int `json:"completed"`
	// Truncated is set when the time budget was exhausted.
	Truncated bool    `json:"truncated"`
	Summary   Summary `json:"summary"`
}

// Run builds replicate trees with the recipe and sets support values of
// the reference tree normalized by the number of completed replicates.
func Run(ctx context.Context, ref *tree.Tree, recipe Recipe, opts Options) (*Result, error) {
	e, err := Prepare(ref, opts.Mode)
	if err != nil {
		return nil, err
	}
	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}
	threads := opts.Threads
	if threads < 1 {
		threads = runtime.GOMAXPROCS(0)
	}

	res := &Result{Requested: opts.Replicates}
	reference := ref.TopologyString()
	done := make(map[int]bool)
	var doneList []int
	if opts.Checkpoint != nil {
		p, err := opts.Checkpoint.Load()
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint: %w", err)
		}
		switch {
		case p == nil:
		case p.Reference != reference || p.Mode != opts.Mode.String():
			log.Warning("Checkpoint is for a different tree or mode, ignoring")
		default:
			if err := e.Restore(p.Counts); err != nil {
				return nil, err
			}
			for _, i := range p.Done {
				done[i] = true
			}
			doneList = append(doneList, p.Done...)
			log.Infof("Resuming bootstrap with %d finished replicates", len(p.Done))
		}
	}

	var mu sync.Mutex
	save := func(final bool) {
		if opts.Checkpoint == nil {
			return
		}
		sort.Ints(doneList)
		opts.Checkpoint.Save(&checkpoint.Progress{
			Reference: reference,
			Mode:      opts.Mode.String(),
			Done:      doneList,
			Counts:    e.Counts(),
			Final:     final,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i := 0; i < opts.Replicates; i++ {
		if done[i] {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			t, err := recipe.Replicate(rng)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", i, err)
			}
			matched, err := e.Compare(t)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", i, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if err := e.Add(matched); err != nil {
				return err
			}
			doneList = append(doneList, i)
			log.Debugf("Replicate %d finished", i)
			if opts.Checkpoint != nil && opts.Checkpoint.Old() {
				save(false)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Completed = len(doneList)
	if res.Completed < opts.Replicates {
		res.Truncated = true
		log.Warningf("Time budget exhausted, %d of %d replicates finished", res.Completed, opts.Replicates)
	}
	save(!res.Truncated)

	if err := e.Normalize(res.Completed, opts.Sentinel); err != nil {
		return nil, err
	}
	res.Summary = Summarize(e.Support())
	log.Infof("Bootstrap: %d replicates, mean support %.1f", res.Completed, res.Summary.Mean)
	return res, nil
}
