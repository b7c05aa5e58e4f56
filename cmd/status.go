package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/handler"
	"github.com/zjrosen/metagraph/internal/manifest"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compute every artifact and print digests and engine statistics",
	Long: `Compute every artifact in the manifest and print its identifier, digest and
number of upstream dependencies, followed by cache statistics and the time
spent notifying each class.

Examples:
  metagraph status
  metagraph status --manifest build/metagraph.yaml --root ./src`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	w, err := openWorkspace(ctx, cfg, command.SourceCLI)
	if err != nil {
		return err
	}
	defer w.Close()

	items, err := w.computeAll(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, headingStyle.Render(row("ARTIFACT", "DIGEST", "UPSTREAM")))
	for _, item := range items {
		info, err := w.engine.Inspect(ctx, item.ID())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, row(string(item.ID()), item.Digest, strconv.Itoa(len(info.Upstream))))
	}

	report, err := w.engine.Report(ctx, false)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report *handler.Report) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, headingStyle.Render("CACHE"))
	_, _ = fmt.Fprintf(out, "%d/%d items, hit rate %.0f%%\n",
		report.CacheSize, report.Capacity, report.Stats.HitRate()*100)
	_, _ = fmt.Fprintln(out, subtleStyle.Render(report.Stats.String()))
	_, _ = fmt.Fprintf(out, "%d edges, %d providers\n", len(report.Edges), len(report.Providers))

	if len(report.Timings) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, headingStyle.Render("NOTIFICATION TIMINGS"))
	for _, t := range report.Timings {
		_, _ = fmt.Fprintf(out, "%-36s %6d calls %12s\n", t.Name, t.Invocations, t.Total)
	}
}

// artifactLine is the one-line summary used by watch.
func artifactLine(item *manifest.Item) string {
	return row(string(item.ID()), item.Digest, subtleStyle.Render(fmt.Sprintf("%d inputs", len(item.Inputs))))
}
