// Command fluidml-run is an example front-end over the fluidml engine:
// it wires the llmreview sample flow (an ingest task feeding an LLM
// review task) and executes it against a results store selected by
// flag or config file. It is not part of the engine's public contract;
// real integrations build their own Flow directly.
package main

import (
	"fmt"
	"os"

	"github.com/fluidml-go/fluidml/cmd/fluidml-run/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
