package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/scatter"
	"github.com/meigma/scatter/archive"
	"github.com/meigma/scatter/internal/config"
	"github.com/meigma/scatter/internal/logging"
)

func newJoinCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <dir | fragment...>",
		Short: "Reassemble fragments in size order",
		Long: `Reassemble fragments into the original archive using only their sizes.

Given a single directory, every regular file in it is treated as a fragment.
Otherwise each argument names one fragment file. The joined archive is
written to --output (standard output by default) or unpacked into the
directory given by --extract.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runJoin,
	}
	config.RegisterJoinFlags(cmd.Flags())
	return cmd
}

func runJoin(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.LoadJoin(v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync errors are not actionable

	frags, err := collectFragments(args)
	if err != nil {
		return err
	}

	opts := []scatter.JoinOption{scatter.JoinWithLogger(log)}
	if cfg.Digest != "" {
		opts = append(opts, scatter.JoinWithExpectedDigest(cfg.Digest))
	}

	var total int64
	for _, f := range frags {
		total += f.Size
	}
	toFile := cfg.Output != "" || cfg.Extract != ""
	var bar *pb.ProgressBar
	if cfg.Progress && toFile {
		bar = pb.New64(total).SetUnits(pb.U_BYTES)
		bar.Output = cmd.ErrOrStderr()
		bar.Start()
		opts = append(opts, scatter.JoinWithProgress(func(ev scatter.ProgressEvent) {
			bar.Set64(ev.BytesDone)
		}))
	}

	ctx := cmd.Context()
	var got digest.Digest
	switch {
	case cfg.Extract != "":
		pr, pw := io.Pipe()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			got, err = scatter.Join(gctx, frags, pw, opts...)
			pw.CloseWithError(err)
			return err
		})
		g.Go(func() error {
			err := archive.Extract(gctx, pr, cfg.Extract, archive.WithLogger(log))
			if err == nil {
				// Drain trailing padding so the writer side never blocks.
				_, err = io.Copy(io.Discard, pr)
			}
			pr.CloseWithError(err)
			return err
		})
		err = g.Wait()
	case cfg.Output != "":
		got, err = joinToFile(cmd, frags, cfg.Output, opts)
	default:
		got, err = scatter.Join(ctx, frags, cmd.OutOrStdout(), opts...)
	}
	if bar != nil {
		bar.Finish()
	}
	if errors.Is(err, scatter.ErrDigestMismatch) {
		return ExitErr{Code: 3, Cause: err}
	}
	if err != nil {
		return err
	}

	if toFile {
		cmd.Printf("Joined %d fragments (%d bytes)\n  digest: %s\n", len(frags), total, got)
	}
	return nil
}

func collectFragments(args []string) ([]scatter.FragmentInfo, error) {
	if len(args) == 1 {
		info, err := os.Stat(args[0])
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return scatter.ScanDir(args[0])
		}
	}
	return scatter.StatFragments(args)
}

func joinToFile(cmd *cobra.Command, frags []scatter.FragmentInfo, path string, opts []scatter.JoinOption) (digest.Digest, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // caller chooses the output file
	if err != nil {
		return "", err
	}
	got, err := scatter.Join(cmd.Context(), frags, f, opts...)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	return got, err
}
