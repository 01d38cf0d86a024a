package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/internal/transfer"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files or directories to the server",
	Long: `Upload sends local files to the server as multipart requests. Files
over the server's size limit are rejected before any bytes move. Directories
are walked and uploaded file by file, keeping their layout.`,
	Example: `  fmwatch upload report.pdf --to /documents
  fmwatch upload ./photos --to /media`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var uploadDest string

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVar(&uploadDest, "to", "/",
		"Destination directory on the server")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureSession(ctx); err != nil {
		return err
	}

	var sources []transfer.FileSource
	for _, path := range args {
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if fi.IsDir() {
			dirSources, err := transfer.FromDir(path, uploadDest)
			if err != nil {
				return err
			}
			sources = append(sources, dirSources...)
			continue
		}
		src, err := transfer.FromFile(path, uploadDest)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		printInfo("Nothing to upload.")
		return nil
	}

	ch, cancel := apiClient.Events().Subscribe()
	defer cancel()

	apiClient.Transfers.Enqueue(ctx, sources...)

	// Wait for every item to reach a terminal state, echoing progress.
	pending := make(map[string]bool, len(sources))
	failed := 0
	for _, item := range apiClient.Transfers.Items() {
		if !item.Status.Terminal() {
			pending[item.ID] = true
			continue
		}
		if item.Status != models.TransferSuccess {
			failed++
		}
		reportTransfer(item)
	}
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			for id := range pending {
				apiClient.Transfers.Cancel(id)
			}
			return fmt.Errorf("upload interrupted")

		case ev, ok := <-ch:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			update, ok := ev.(events.TransferUpdatedEvent)
			if !ok || !pending[update.Item.ID] {
				continue
			}
			if update.Item.Status.Terminal() {
				delete(pending, update.Item.ID)
				if update.Item.Status != models.TransferSuccess {
					failed++
				}
				reportTransfer(update.Item)
			} else if !jsonOutput && update.Item.Status == models.TransferUploading {
				fmt.Fprintf(os.Stderr, "\r%s: %3d%% (%s/s)   ",
					update.Item.Name, update.Item.Progress, formatBytes(update.Item.Speed))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d upload(s) failed", failed, len(sources))
	}
	if !jsonOutput {
		printSuccess("Uploaded %d file(s) to %s", len(sources), uploadDest)
	}
	return nil
}

func reportTransfer(item models.TransferItem) {
	if jsonOutput {
		printJSON(item)
		return
	}
	fmt.Fprint(os.Stderr, "\r")
	switch item.Status {
	case models.TransferSuccess:
		printInfo("%s: done (%s)", item.Name, formatBytes(item.Size))
	case models.TransferRejected:
		printError("%s: %s", item.Name, item.ErrorMessage)
	default:
		printError("%s: %s", item.Name, item.ErrorMessage)
	}
}
