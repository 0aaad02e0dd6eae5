package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluidml-go/fluidml"
	"github.com/fluidml-go/fluidml/emit"
	"github.com/fluidml-go/fluidml/store"
	"github.com/fluidml-go/fluidml/store/sqlstore"

	"github.com/fluidml-go/fluidml/examples/llmreview"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingest -> llmreview example flow",
	RunE:  runFlow,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("prompt", "Review this text for clarity and correctness:", "prompt prefixed to the reviewed text")
	runCmd.Flags().String("text", "FluidML expands a declarative task graph and schedules it on a worker pool.", "text the ingest task publishes for review")
	_ = v.BindPFlags(runCmd.Flags())
}

func runFlow(cobraCmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	st, cleanup, err := buildStore()
	if err != nil {
		return err
	}
	defer cleanup()

	ingest := fluidml.NewTaskSpec("ingest", ingestConstructor(v.GetString("text"))).
		WithPublishes("content")

	review := llmreview.Spec("review", ingest, "content", v.GetString("prompt"))

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{ingest, review},
		fluidml.WithEmitter(emit.NewLogEmitter(cobraCmd.OutOrStdout(), false)))
	if err != nil {
		return fmt.Errorf("build flow: %w", err)
	}

	resources := make([]fluidml.Resource, v.GetInt("resources"))
	for i := range resources {
		resources[i] = fluidml.Resource{"id": i}
	}

	var force any
	if f := v.GetString("force"); f != "" {
		force = f
	}

	results, err := flow.Run(ctx, resources, st, force)
	if err != nil {
		return fmt.Errorf("run flow: %w", err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cobraCmd.OutOrStdout(), string(out))
	return nil
}

// buildStore constructs the results-store backend named by the --store
// flag and returns a cleanup func to release any resources it holds.
func buildStore() (store.Store, func(), error) {
	switch backend := v.GetString("store"); backend {
	case "memory":
		return store.NewMemStore(), func() {}, nil
	case "localfile":
		return store.NewLocalFileStore(v.GetString("base-dir"), v.GetString("project")), func() {}, nil
	case "sqlite":
		s, err := sqlstore.Open(v.GetString("sqlite-path"))
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("fluidml-run: unknown store backend %q (want memory, localfile, or sqlite)", backend)
	}
}

// ingestConstructor returns a fluidml.TaskConstructor for a trivial task
// that publishes text verbatim under the "content" artifact name.
func ingestConstructor(text string) fluidml.TaskConstructor {
	return func(fluidml.Kwargs) (fluidml.Task, error) {
		return ingestTask{text: text}, nil
	}
}

type ingestTask struct{ text string }

func (t ingestTask) Run(_ context.Context, rt *fluidml.Runtime) error {
	return rt.Save(t.text, "content")
}
