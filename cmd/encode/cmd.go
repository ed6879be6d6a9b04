package encode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/internal/logic"
	"github.com/trialgen/trialgen/pkg/design"
)

func NewEncodeCommand() *cobra.Command {
	var (
		strategy        string
		allowIncomplete bool
		output          string
	)
	cmd := &cobra.Command{
		Use:   "encode <design.json>",
		Short: "Compiles a design into DIMACS CNF",
		Long: `Compiles a design file into a DIMACS CNF problem, with the design
variables listed as "c ind" independent-support comment lines so that
uniform model samplers know which variables carry the solution.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file (%s) not found", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return encode(args[0], strategy, allowIncomplete, output)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "tseitin", "CNF strategy: naive, switching, or tseitin")
	cmd.Flags().BoolVar(&allowIncomplete, "allow-incomplete", false, "permit exclusions to shrink the crossing")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write DIMACS to a file instead of stdout")
	return cmd
}

func encode(path, strategyName string, allowIncomplete bool, output string) error {
	strategy, err := strategyByName(strategyName)
	if err != nil {
		return err
	}
	b, err := buildBlock(path, strategy, allowIncomplete)
	if err != nil {
		return err
	}
	req, err := b.BuildBackendRequest()
	if err != nil {
		return err
	}
	formula, err := req.Compile()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return formula.WriteDIMACSWithSupport(w, b.SupportVariables())
}

func strategyByName(name string) (logic.Strategy, error) {
	switch name {
	case "naive":
		return logic.ToCNFNaive, nil
	case "switching":
		return logic.ToCNFSwitching, nil
	case "tseitin":
		return logic.ToCNFTseitin, nil
	default:
		return nil, fmt.Errorf("unknown CNF strategy %q", name)
	}
}

func buildBlock(path string, strategy logic.Strategy, allowIncomplete bool) (*block.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening design file (%s): %w", path, err)
	}
	defer f.Close()

	d, err := design.Load(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing design file (%s): %w", path, err)
	}
	opts := []block.Option{block.WithStrategy(strategy)}
	if allowIncomplete {
		opts = append(opts, block.AllowIncompleteCrossing())
	}
	return block.New(d, opts...)
}
