/*

Genetree reconstructs gene trees with constrained neighbor joining,
roots them by reconciliation with a species tree and annotates
duplications, gene losses and orthologs.

Build a tree from an alignment, root it with a species tree and
compute bootstrap support:

	genetree nj --alignment genes.fst --species species.nwk --bootstrap 100

Gene names carry the species after the last underscore, e.g. HBA_HUMAN.

Reconcile a rooted gene tree, root an unrooted one, or list orthologs:

	genetree sdi --species species.nwk gene.nwk
	genetree root --species species.nwk gene.nwk
	genetree ortho --species species.nwk gene.nwk

To see all the options run:

	genetree -h

*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/genetree/bio"
	"bitbucket.org/Davydov/genetree/bootstrap"
	"bitbucket.org/Davydov/genetree/checkpoint"
	"bitbucket.org/Davydov/genetree/distance"
	"bitbucket.org/Davydov/genetree/pipeline"
	"bitbucket.org/Davydov/genetree/sdi"
	"bitbucket.org/Davydov/genetree/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("genetree")
var formatter = logging.MustStringFormatter(`%{message}`)

// loggers lists all the package loggers.
var loggers = []string{"genetree", "tree", "distance", "nj", "sdi", "bootstrap", "checkpoint", "pipeline"}

// command-line options
var (
	// application
	app = kingpin.New("genetree", "gene tree reconstruction and reconciliation").Version(version)

	// species
	speciesFileName = app.Flag("species", "species tree").ExistingFile()
	strictSpecies   = app.Flag("strict", "unknown species is an error").Bool()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write the result to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()

	// neighbor joining
	njCmd             = app.Command("nj", "build a tree with neighbor joining")
	matrixFileName    = njCmd.Flag("matrix", "distance matrix in PHYLIP format").ExistingFile()
	alignmentFileName = njCmd.Flag("alignment", "sequence alignment in FASTA format").ExistingFile()
	distMethod        = njCmd.Flag("dist", "distance for alignments "+
		"(p: proportion of differences, poisson: Poisson correction, jc: Jukes-Cantor)").
		Default("poisson").
		Enum("p", "poisson", "jc")
	consFileNames = njCmd.Flag("cons", "constraint tree, can be repeated").ExistingFiles()
	consRoot      = njCmd.Flag("cons-root", "apply constraints at the root").Bool()
	nBootstrap    = njCmd.Flag("bootstrap", "number of bootstrap replicates").Int()
	budget        = njCmd.Flag("budget", "bootstrap time budget, e.g. 10m").Duration()
	supportMode   = njCmd.Flag("mode", "bootstrap support mode "+
		"(branch: bipartitions, node: child subsets)").
		Default("branch").
		Enum("branch", "node")
	sentinel       = njCmd.Flag("sentinel", "support value if no replicate finished").Default("-1").Int()
	checkpointF    = njCmd.Flag("checkpoint", "bootstrap checkpoint database").String()
	checkpointFreq = njCmd.Flag("checkpoint-seconds", "save checkpoint at most every N seconds").Default("60").Float64()
	supportPlotF   = njCmd.Flag("supportplot", "write support histogram (png, svg or pdf)").String()

	// reconciliation of the given tree
	sdiCmd      = app.Command("sdi", "reconcile a rooted gene tree with the species tree")
	sdiTreeF    = sdiCmd.Arg("tree", "rooted gene tree").Required().ExistingFile()
	rootCmd     = app.Command("root", "root a gene tree by reconciliation with the species tree")
	rootTreeF   = rootCmd.Arg("tree", "gene tree").Required().ExistingFile()
	orthoCmd    = app.Command("ortho", "list orthologs and paralogs of a gene tree")
	orthoTreeF  = orthoCmd.Arg("tree", "gene tree").Required().ExistingFile()
	orthoRootIt = orthoCmd.Flag("root", "root the gene tree by reconciliation first").Bool()
)

// readTree reads a newick tree from a file.
func readTree(fn string) (*tree.Tree, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := tree.ParseNewick(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return t, nil
}

// readSpecies reads the species tree, which is required by some commands.
func readSpecies(required bool) *tree.Tree {
	if *speciesFileName == "" {
		if required {
			log.Fatal("Species tree is required (--species)")
		}
		return nil
	}
	species, err := readTree(*speciesFileName)
	if err != nil {
		log.Fatal("Error reading species tree:", err)
	}
	log.Infof("Species tree has %d leaves", species.NLeaves())
	log.Debugf("species=%s", species)
	return species
}

// output writes the result to the output file or stdout.
func output(write func(w io.Writer) error) {
	var w io.Writer = os.Stdout
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating output file:", err)
		}
		defer f.Close()
		w = f
	}
	if err := write(w); err != nil {
		log.Fatal("Error writing output:", err)
	}
}

// writeString returns a writer function for a string.
func writeString(s string) func(w io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s+"\n")
		return err
	}
}

// reconciled stores the reconciliation in the summary and returns the
// annotated tree.
func reconciled(summary *RunSummary, rec *sdi.Reconciliation) string {
	summary.Duplications = rec.Duplications
	summary.Losses = rec.Losses
	summary.Unclassified = rec.Unclassified
	return rec.String()
}

func runNJ(summary *RunSummary) {
	if (*matrixFileName == "") == (*alignmentFileName == "") {
		log.Fatal("Either --matrix or --alignment is required")
	}

	var cons []*tree.Tree
	for _, fn := range *consFileNames {
		t, err := readTree(fn)
		if err != nil {
			log.Fatal("Error reading constraint tree:", err)
		}
		cons = append(cons, t)
	}
	log.Infof("%d constraint tree(s)", len(cons))

	mode, err := bootstrap.ParseMode(*supportMode)
	if err != nil {
		log.Fatal(err)
	}
	method, err := distance.ParseMethod(*distMethod)
	if err != nil {
		log.Fatal(err)
	}

	settings := pipeline.Settings{
		Constraints:   cons,
		ConstrainRoot: *consRoot,
		Species:       readSpecies(false),
		StrictSpecies: *strictSpecies,
		Method:        method,
		Threads:       *nThreads,
		Bootstrap:     *nBootstrap,
		Mode:          mode,
		Budget:        *budget,
		Seed:          *seed,
		Sentinel:      *sentinel,
	}

	if *checkpointF != "" {
		db, err := checkpoint.Open(*checkpointF)
		if err != nil {
			log.Fatal("Error opening checkpoint:", err)
		}
		defer db.Close()
		settings.Checkpoint = checkpoint.NewCheckpointIO(db, []byte("bootstrap"), *checkpointFreq)
	}

	var res *pipeline.Result
	if *matrixFileName != "" {
		f, err := os.Open(*matrixFileName)
		if err != nil {
			log.Fatal(err)
		}
		m, err := distance.ReadPhylip(f)
		f.Close()
		if err != nil {
			log.Fatal("Error reading distance matrix:", err)
		}
		log.Infof("Read %dx%d distance matrix", m.N(), m.N())
		p, err := pipeline.New(m.Names, settings)
		if err != nil {
			log.Fatal(err)
		}
		if res, err = p.RunMatrix(m); err != nil {
			log.Fatal(err)
		}
	} else {
		f, err := os.Open(*alignmentFileName)
		if err != nil {
			log.Fatal(err)
		}
		ali, err := bio.ParseFasta(f)
		f.Close()
		if err != nil {
			log.Fatal("Error reading alignment:", err)
		}
		l, err := ali.Length()
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("Read alignment of %d sequences, %d positions", len(ali), l)
		p, err := pipeline.New(ali.Names(), settings)
		if err != nil {
			log.Fatal(err)
		}
		if res, err = p.RunAlignment(context.Background(), ali); err != nil {
			log.Fatal(err)
		}
	}

	summary.NLeaves = res.Tree.NLeaves()
	summary.FinalTree = res.Tree.String()
	if res.Reconciliation != nil {
		summary.FinalTree = reconciled(summary, res.Reconciliation)
	}
	if res.Bootstrap != nil {
		summary.Bootstrap = res.Bootstrap
		log.Noticef("Bootstrap: %d of %d replicates, mean support %.1f",
			res.Bootstrap.Completed, res.Bootstrap.Requested, res.Bootstrap.Summary.Mean)
		if res.Bootstrap.Truncated {
			log.Warning("Bootstrap was truncated by the time budget")
		}
		if *supportPlotF != "" {
			if err := supportPlot(res.Tree, *supportPlotF); err != nil {
				log.Error("Error plotting support:", err)
			}
		}
	} else if *supportPlotF != "" {
		log.Warning("Support plot requires bootstrap")
	}
	output(writeString(summary.FinalTree))
}

// reconcile reads the gene tree and reconciles it, rooting it first
// if requested.
func reconcile(fn string, root bool) (*tree.Tree, *sdi.Reconciliation) {
	species := readSpecies(true)
	gene, err := readTree(fn)
	if err != nil {
		log.Fatal("Error reading gene tree:", err)
	}
	log.Infof("Gene tree has %d leaves", gene.NLeaves())
	r, err := sdi.NewReconciler(species)
	if err != nil {
		log.Fatal("Bad species tree:", err)
	}
	link, err := sdi.LinkBySuffix(gene, species, *strictSpecies)
	if err != nil {
		log.Fatal(err)
	}
	if root {
		rooted, rec, err := r.Root(gene, link, *nThreads)
		if err != nil {
			log.Fatal("Error rooting gene tree:", err)
		}
		return rooted, rec
	}
	if !gene.IsRooted() {
		log.Fatal("Gene tree is not rooted, use the root command")
	}
	rec := r.Reconcile(gene, link)
	r.InferLosses(rec)
	return gene, rec
}

func runSDI(summary *RunSummary, fn string, root bool) {
	gene, rec := reconcile(fn, root)
	summary.NLeaves = gene.NLeaves()
	summary.FinalTree = reconciled(summary, rec)
	log.Noticef("%d duplications, %d losses", rec.Duplications, rec.Losses)
	output(writeString(summary.FinalTree))
}

func runOrtho(summary *RunSummary) {
	gene, rec := reconcile(*orthoTreeF, *orthoRootIt)
	summary.NLeaves = gene.NLeaves()
	summary.FinalTree = reconciled(summary, rec)
	output(rec.Orthologs().Write)
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range loggers {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	runtime.GOMAXPROCS(*nThreads)
	effectiveNThreads := runtime.GOMAXPROCS(0)
	*nThreads = effectiveNThreads
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	startTime := time.Now()
	summary := &RunSummary{
		Version:     version,
		CommandLine: os.Args,
		Command:     command,
		Seed:        *seed,
		NThreads:    effectiveNThreads,
	}

	switch command {
	case njCmd.FullCommand():
		runNJ(summary)
	case sdiCmd.FullCommand():
		runSDI(summary, *sdiTreeF, false)
	case rootCmd.FullCommand():
		runSDI(summary, *rootTreeF, true)
	case orthoCmd.FullCommand():
		runOrtho(summary)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	// output summary in json format
	if *jsonF != "" {
		summary.write(*jsonF)
	}
}
