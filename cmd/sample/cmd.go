package sample

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/internal/enumerator"
	"github.com/trialgen/trialgen/internal/sampler"
	"github.com/trialgen/trialgen/pkg/design"
)

func NewSampleCommand() *cobra.Command {
	var (
		count           int
		seed            int64
		gen             string
		allowIncomplete bool
		showCount       bool
	)
	cmd := &cobra.Command{
		Use:   "sample <design.json>",
		Short: "Samples valid trial sequences for a design",
		Long: `Samples trial sequences that satisfy a design's crossing and
constraints. The uniform generator counts the solution space and draws from
it uniformly; the iterate generator walks SAT solver models instead.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file (%s) not found", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], count, seed, gen, allowIncomplete, showCount)
		},
	}
	cmd.Flags().IntVarP(&count, "samples", "n", 1, "number of samples to draw")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 uses a nondeterministic seed)")
	cmd.Flags().StringVar(&gen, "gen", "uniform", "generator: uniform or iterate")
	cmd.Flags().BoolVar(&allowIncomplete, "allow-incomplete", false, "permit exclusions to shrink the crossing")
	cmd.Flags().BoolVar(&showCount, "count", false, "print the solution count instead of sampling")
	return cmd
}

func run(cmd *cobra.Command, path string, count int, seed int64, genName string, allowIncomplete, showCount bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening design file (%s): %w", path, err)
	}
	defer f.Close()

	d, err := design.Load(f)
	if err != nil {
		return fmt.Errorf("error parsing design file (%s): %w", path, err)
	}
	var opts []block.Option
	if allowIncomplete {
		opts = append(opts, block.AllowIncompleteCrossing())
	}
	b, err := block.New(d, opts...)
	if err != nil {
		return err
	}

	log := logrus.StandardLogger()
	if showCount {
		return printCount(b, log)
	}

	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	var g sampler.Gen
	switch genName {
	case "uniform":
		g = sampler.NewUniformGen(rng, log)
	case "iterate":
		g = sampler.NewIterateGen(log)
	default:
		return fmt.Errorf("unknown generator %q", genName)
	}

	result, err := g.Sample(cmd.Context(), b, count)
	if err != nil {
		return err
	}
	if result.Exhausted {
		log.Warnf("design has only %d remaining solutions; requested %d", len(result.Samples), count)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(result.Samples)
}

func printCount(b *block.Block, log logrus.FieldLogger) error {
	e, err := enumerator.New(b, enumerator.WithLogger(log))
	if err != nil {
		return err
	}
	fmt.Println(e.SolutionCount().String())
	return nil
}
