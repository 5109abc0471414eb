package main

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	reindexLocations []string
	reindexQuiet     bool
)

var errAlreadyRunning = errors.New("another reindex holds the lock")

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild index entries from the metadata of every registered object",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lock := flock.New(cfg.LockFile)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)
		}
		if !locked {
			return fmt.Errorf("%w: %s", errAlreadyRunning, cfg.LockFile)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Warnf("Failed to release lock %s: %v", cfg.LockFile, err)
			}
		}()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var bar *progressbar.ProgressBar
		if !reindexQuiet {
			bar = progressbar.Default(-1, "reindexing")
		}
		stats, err := a.Reindex(ctx, reindexLocations, func(string) {
			if bar != nil {
				_ = bar.Add(1)
			}
		})
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			return err
		}

		fmt.Printf("Indexed %d, removed %d, failed %d\n", stats.Indexed, stats.Removed, stats.Failed)
		if stats.Failed > 0 {
			return fmt.Errorf("%d objects could not be reindexed", stats.Failed)
		}
		return nil
	},
}

func init() {
	reindexCmd.Flags().StringSliceVarP(&reindexLocations, "location", "l", nil, "Storage locations to reindex (repeatable)")
	reindexCmd.Flags().BoolVarP(&reindexQuiet, "quiet", "q", false, "Suppress the progress bar")
	rootCmd.AddCommand(reindexCmd)
}
