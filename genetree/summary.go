package main

import (
	"encoding/json"
	"os"

	"bitbucket.org/Davydov/genetree/bootstrap"
)

// RunSummary is storing genetree run summary information.
type RunSummary struct {
	// Version stores genetree version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Command is the subcommand which was run.
	Command string `json:"command"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// NLeaves is the number of gene tree leaves.
	NLeaves int `json:"nLeaves"`
	// Duplications is the number of inferred duplications.
	Duplications int `json:"duplications"`
	// Losses is the number of inferred gene losses.
	Losses int `json:"losses"`
	// Unclassified is the number of nodes without a species.
	Unclassified int `json:"unclassified,omitempty"`
	// Bootstrap is the bootstrap outcome, if bootstrap was requested.
	Bootstrap *bootstrap.Result `json:"bootstrap,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// FinalTree is the resulting tree.
	FinalTree string `json:"finalTree"`
}

// write saves the summary in json format.
func (s *RunSummary) write(fn string) {
	j, err := json.Marshal(s)
	if err != nil {
		log.Error(err)
		return
	}
	log.Debug(string(j))
	f, err := os.Create(fn)
	if err != nil {
		log.Error("Error creating json output file:", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(j); err != nil {
		log.Error("Error writing json output:", err)
	}
}
