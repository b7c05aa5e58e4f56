package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/fileprovider"
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/manifest"
)

var graphCmd = &cobra.Command{
	Use:   "graph <id>",
	Short: "Show what an identifier depends on and what depends on it",
	Long: `Compute every artifact, then print the upstream and downstream neighbours of
one identifier. A bare name is taken as an artifact name.

Examples:
  metagraph graph docs
  metagraph graph MID:artifact#docs
  metagraph graph 'MID:file#api/schema.yaml'`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

// resolveID accepts a full identifier or a bare artifact name.
func resolveID(arg string) (identifier.ID, error) {
	if strings.HasPrefix(arg, identifier.Prefix) {
		return identifier.Parse(arg)
	}
	return manifest.ArtifactID(arg)
}

func runGraph(cmd *cobra.Command, args []string) error {
	id, err := resolveID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	w, err := openWorkspace(ctx, cfg, command.SourceCLI)
	if err != nil {
		return err
	}
	defer w.Close()

	if _, err := w.computeAll(ctx); err != nil {
		return err
	}
	info, err := w.engine.Inspect(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, headingStyle.Render(string(info.ID)))
	if !info.HasProvider {
		_, _ = fmt.Fprintln(out, errorStyle.Render("no provider for "+string(id.ClassID())))
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("UPSTREAM (%d)", len(info.Upstream))))
	for _, up := range info.Upstream {
		describe(ctx, out, w, up)
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("DOWNSTREAM (%d)", len(info.Downstream))))
	for _, down := range info.Downstream {
		describe(ctx, out, w, down)
	}
	return nil
}

// describe prints one neighbour with whatever its item says about it.
func describe(ctx context.Context, out io.Writer, w *workspace, id identifier.ID) {
	if !id.IsInstance() {
		_, _ = fmt.Fprintln(out, row(string(id), "", subtleStyle.Render("class")))
		return
	}
	item, err := w.engine.Get(ctx, id, false)
	if err != nil {
		_, _ = fmt.Fprintln(out, row(string(id), "", errorStyle.Render(err.Error())))
		return
	}
	switch it := item.(type) {
	case *fileprovider.File:
		detail := fmt.Sprintf("%s, modified %s", humanize.Bytes(uint64(it.Size)), humanize.Time(it.ModTime)) // #nosec G115 -- sizes are non-negative
		_, _ = fmt.Fprintln(out, row(string(id), it.Digest, subtleStyle.Render(detail)))
	case *manifest.Item:
		_, _ = fmt.Fprintln(out, artifactLine(it))
	case nil:
		_, _ = fmt.Fprintln(out, row(string(id), "", changedStyle.Render("missing")))
	default:
		_, _ = fmt.Fprintln(out, row(string(id), "", ""))
	}
}
