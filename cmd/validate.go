package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealgen/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [simulation.yaml]",
	Short: "Validate a simulation config",
	Long:  "Loads a simulation config over the built-in defaults and checks every probability, rate and weight. With no argument the defaults themselves are checked.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Input.SimulationPath
		if len(args) == 1 {
			path = args[0]
		}

		sim, err := config.LoadSimulation(path)
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		formatSimulation(os.Stdout, path, sim)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// formatSimulation writes a short overview of a valid simulation config.
func formatSimulation(out io.Writer, path string, sim config.SimulationConfig) {
	if path == "" {
		path = "(defaults)"
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Config:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "Status:\tvalid\n")
	_, _ = fmt.Fprintf(w, "Calendar:\t%s .. %s\n", sim.Calendar.Start, sim.Calendar.End)
	_, _ = fmt.Fprintf(w, "Size bands:\t%d\n", len(sim.Features.SizeBands))
	_, _ = fmt.Fprintf(w, "Industry segments:\t%d\n", len(sim.Features.IndustrySegments))
	_, _ = fmt.Fprintf(w, "Probability bounds:\t[%.3f, %.3f]\n", sim.Probability.Min, sim.Probability.Max)
	_, _ = fmt.Fprintf(w, "Owners:\t%d\n", len(sim.Owners))
	_ = w.Flush()
}
