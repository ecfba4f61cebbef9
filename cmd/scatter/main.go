// Command scatter archives a directory and splits the archive into plainly
// named files whose sizes encode their order.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meigma/scatter"
	"github.com/meigma/scatter/internal/config"
	"github.com/meigma/scatter/internal/logging"
)

var version = "dev"

// ExitErr carries the process exit code for an error.
type ExitErr struct {
	Code  int
	Cause error
}

func (x ExitErr) Error() string { return x.Cause.Error() }

func (x ExitErr) Unwrap() error { return x.Cause }

func main() {
	exitOnErr(os.Stderr, newRootCommand().Execute())
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "scatter",
		Short: "Split a directory archive into size-ordered fragments",
		Long: `scatter archives a directory and splits the archive into a set of files.

Fragment sizes descend by one byte from the first fragment and the last
fragment is the largest, so the original order can be recovered from the
sizes alone. Names come from a list file (-f), sequential numbers (-n), or
random 64-character tokens (-r).

Run it in an otherwise empty output directory: fragments are ordinary files
and are easily mixed up with anything else there.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	config.RegisterGlobalFlags(root.PersistentFlags())

	root.AddCommand(
		newSplitCommand(),
		newPlanCommand(),
		newJoinCommand(),
	)
	return root
}

// exitOnErr prints err and exits with its code. Configuration and plan
// failures exit with 2, everything else with 1. Does nothing if err is nil.
func exitOnErr(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, "Error:", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var e ExitErr
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, scatter.ErrConfig), errors.Is(err, scatter.ErrPlan):
		return 2
	default:
		return 1
	}
}

// newLogger builds the command logger from the resolved --log-level.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	lvl, err := config.LogLevel(v)
	if err != nil {
		return nil, err
	}
	return logging.New(lvl)
}
