package main

import (
	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meigma/scatter"
	"github.com/meigma/scatter/archive"
	"github.com/meigma/scatter/internal/config"
	"github.com/meigma/scatter/internal/logging"
)

func newSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [root] ([-f names] | [-n count] [-r])",
		Short: "Archive a directory and write it out as fragments",
		Long: `Archive a directory and write the archive out as fragments.

The fragment layout is computed and checked before anything is written. If
the archive length cannot be split unambiguously into the requested number
of fragments, no file is created and a different count must be chosen.

Without naming flags, ten fragments named 0 through 9 are written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSplit,
	}
	config.RegisterSplitFlags(cmd.Flags())
	return cmd
}

func runSplit(cmd *cobra.Command, args []string) error {
	var root string
	if len(args) == 1 {
		root = args[0]
	}

	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v, root)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync errors are not actionable

	ctx := cmd.Context()
	var src *archive.Source
	if cfg.Input != "" {
		src, err = archive.Open(cfg.Input)
	} else {
		src, err = archive.Tar(ctx, cfg.Root, archive.WithCompression(cfg.Compression), archive.WithLogger(log))
	}
	if err != nil {
		return err
	}
	defer src.Close()

	plan, err := scatter.NewPlanFrom(src.Size, cfg.Naming)
	if err != nil {
		return err
	}
	log.Info("planned fragments",
		zap.Int("count", plan.Len()),
		zap.Int64("total", plan.Total()),
		zap.String("media_type", src.MediaType))

	opts := []scatter.PartitionOption{scatter.PartitionWithLogger(log)}
	var bar *pb.ProgressBar
	if cfg.Progress {
		bar = pb.New64(src.Size).SetUnits(pb.U_BYTES)
		bar.Output = cmd.ErrOrStderr()
		bar.Start()
		opts = append(opts, scatter.PartitionWithProgress(func(ev scatter.ProgressEvent) {
			bar.Set64(ev.BytesDone)
		}))
	}

	res, err := scatter.NewPartitioner(scatter.DirSink{Dir: cfg.OutputDir}, opts...).Partition(ctx, src, plan)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	cmd.Printf("Wrote %d fragments (%d bytes) to %s\n", len(res.Fragments), res.Total, cfg.OutputDir)
	cmd.Printf("  digest: %s\n", res.Digest)
	return nil
}
