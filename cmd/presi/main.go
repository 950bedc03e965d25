package main

import (
	"fmt"
	"os"

	"github.com/orrn/presi/internal/pipeline"
)

func main() {
	// Pipeline supervisors re-exec this binary; they must not parse flags.
	if pipeline.IsSupervisor() {
		os.Exit(pipeline.RunSupervisor())
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
