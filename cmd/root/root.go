package root

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trialgen/trialgen/cmd/encode"

	"github.com/trialgen/trialgen/cmd/sample"
)

func NewRootCmd() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:   "trialgen",
		Short: "Trialgen synthesizes experimental designs as SAT problems",
		Long: `Trialgen compiles factorial experimental designs into CNF and samples
valid trial sequences, either uniformly by combinatoric counting or by
iterating SAT solver models.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// add sub-commands
	rootCmd.AddCommand(encode.NewEncodeCommand())
	rootCmd.AddCommand(sample.NewSampleCommand())

	return rootCmd
}
