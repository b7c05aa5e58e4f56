package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/fileprovider"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/manifest"
	"github.com/zjrosen/metagraph/internal/metadata"
	"github.com/zjrosen/metagraph/internal/processor"
	"github.com/zjrosen/metagraph/internal/pubsub"
	"github.com/zjrosen/metagraph/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompute affected artifacts as workspace files change",
	Long: `Compute every artifact, then watch the workspace root. Each changed file is
evicted and its dependents are notified; artifacts are printed as they are
recomputed. Press Ctrl+C to stop.

Examples:
  metagraph watch
  metagraph watch --root ./src --debug`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := openWorkspace(ctx, cfg, command.SourceWatcher)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	items, err := w.computeAll(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		_, _ = fmt.Fprintln(out, artifactLine(item))
	}

	fw, err := watcher.New(watcher.Config{
		Root:        w.root,
		DebounceDur: cfg.Watcher.Debounce,
		Ignore:      cfg.Watcher.Ignore,
	})
	if err != nil {
		return err
	}
	changes, err := fw.Start()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Stop() }()

	manifestRel, _ := fw.Rel(w.manifestPath)
	metadataEvents := w.engine.MetadataEvents().Subscribe(ctx)
	commandEvents := w.engine.CommandEvents().Subscribe(ctx)

	_, _ = fmt.Fprintln(out, subtleStyle.Render(fmt.Sprintf("watching %s", w.root)))
	return watchLoop(ctx, out, w, changes, manifestRel, metadataEvents, commandEvents)
}

func watchLoop(
	ctx context.Context,
	out io.Writer,
	w *workspace,
	changes <-chan []string,
	manifestRel string,
	metadataEvents <-chan pubsub.Event[metadata.Event],
	commandEvents <-chan pubsub.Event[any],
) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case paths, ok := <-changes:
			if !ok {
				return nil
			}
			for _, rel := range paths {
				if rel == manifestRel {
					_, _ = fmt.Fprintln(out, changedStyle.Render("manifest changed; restart watch to reload it"))
					continue
				}
				if err := submitChange(w, rel); err != nil {
					return err
				}
			}

		case ev, ok := <-metadataEvents:
			if !ok {
				return nil
			}
			if ev.Type != pubsub.CreatedEvent {
				continue
			}
			if item, isArtifact := ev.Payload.Item.(*manifest.Item); isArtifact {
				_, _ = fmt.Fprintln(out, changedStyle.Render(artifactLine(item)))
			}

		case ev, ok := <-commandEvents:
			if !ok {
				return nil
			}
			if logEvent, isLog := ev.Payload.(processor.CommandLogEvent); isLog && !logEvent.Success {
				_, _ = fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("%s failed: %v", logEvent.CommandType, logEvent.Error)))
			}
		}
	}
}

// submitChange queues the eviction of a changed file and the notification of
// its dependents. The processor runs them in order.
func submitChange(w *workspace, rel string) error {
	id, err := fileprovider.FileID(filepath.ToSlash(rel))
	if err != nil {
		return err
	}
	log.Debug(log.CatWatcher, "File changed", "id", id)
	if err := w.engine.Submit(command.NewEvictCommand(command.SourceWatcher, id)); err != nil {
		return err
	}
	return w.engine.Submit(command.NewNotifyDownstreamCommand(command.SourceWatcher, id))
}
