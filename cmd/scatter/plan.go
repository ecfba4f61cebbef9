package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meigma/scatter"
	"github.com/meigma/scatter/archive"
	"github.com/meigma/scatter/internal/config"
)

const formatFlag = "format"

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <length|file|dir>",
		Short: "Show the fragment layout without writing anything",
		Long: `Show the fragment layout for a stream without writing fragments.

The argument is a byte length, an existing archive file, or a directory. A
directory is archived to a temporary file with the selected compression to
measure it; the temporary file is removed afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: runPlan,
	}
	config.RegisterNamingFlags(cmd.Flags())
	config.RegisterCompressionFlag(cmd.Flags())
	cmd.Flags().String(formatFlag, "table", "output format (table, yaml)")
	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	naming, err := config.Naming(v)
	if err != nil {
		return err
	}
	format := v.GetString(formatFlag)
	if format != "table" && format != "yaml" {
		return fmt.Errorf("%w: unknown format %q", scatter.ErrConfig, format)
	}
	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync errors are not actionable

	total, err := streamLength(cmd, log, v.GetString(config.KeyCompression), args[0])
	if err != nil {
		return err
	}
	plan, err := scatter.NewPlanFrom(total, naming)
	if err != nil {
		return err
	}

	if format == "yaml" {
		return printPlanYAML(cmd.OutOrStdout(), plan)
	}
	printPlanTable(cmd.OutOrStdout(), plan)
	return nil
}

// streamLength interprets arg as a byte count, a file, or a directory.
func streamLength(cmd *cobra.Command, log *zap.Logger, compression, arg string) (int64, error) {
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n, nil
	}

	info, err := os.Stat(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", scatter.ErrConfig, err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	c, err := archive.ParseCompression(compression)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", scatter.ErrConfig, err)
	}
	src, err := archive.Tar(cmd.Context(), arg, archive.WithCompression(c), archive.WithLogger(log))
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return src.Size, nil
}

type planOutput struct {
	Total     int64            `yaml:"total"`
	Fragments []fragmentOutput `yaml:"fragments"`
}

type fragmentOutput struct {
	Name   string `yaml:"name"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
}

func planRows(plan scatter.Plan) []fragmentOutput {
	rows := make([]fragmentOutput, 0, plan.Len())
	var offset int64
	for _, f := range plan.Fragments() {
		rows = append(rows, fragmentOutput{Name: f.Name, Offset: offset, Size: f.Size})
		offset += f.Size
	}
	return rows
}

func printPlanYAML(w io.Writer, plan scatter.Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(planOutput{Total: plan.Total(), Fragments: planRows(plan)}); err != nil {
		return err
	}
	return enc.Close()
}

func printPlanTable(w io.Writer, plan scatter.Plan) {
	out := tablewriter.NewWriter(w)
	out.SetHeader([]string{"#", "Name", "Offset", "Size"})
	out.SetAutoWrapText(false)
	out.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i, r := range planRows(plan) {
		out.Append([]string{
			strconv.Itoa(i),
			r.Name,
			strconv.FormatInt(r.Offset, 10),
			strconv.FormatInt(r.Size, 10),
		})
	}
	out.SetFooter([]string{"", "", "Total", strconv.FormatInt(plan.Total(), 10)})
	out.Render()
}
