package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zpreserve/internal/app"
	"github.com/zzenonn/zpreserve/internal/candidates"
	"github.com/zzenonn/zpreserve/internal/domain"
)

var (
	selectLocations []string
	selectPolicy    string
	followSymlinks  bool
	forceAll        bool
	candidatesEvent string
	pathsOnly       bool
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates [path...]",
	Short: "List registered objects with a preservation service due",
	Long: "List registered objects with a preservation service due. Without paths or --location, " +
		"every configured location is examined. The index is used when one is configured.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sel, err := a.Selector(app.Selection{
			Paths:          args,
			Locations:      selectLocations,
			Policy:         selectPolicy,
			FollowSymlinks: followSymlinks,
		})
		if err != nil {
			return err
		}

		event := strings.ToLower(candidatesEvent)
		it := a.Locator.CandidateIterator(sel, event, forceAll)

		var rows [][]string
		err = candidates.ForEach(ctx, it, func(file *domain.FileRecord) error {
			if pathsOnly {
				fmt.Println(file.Path)
				return nil
			}
			next, ok := a.Services.NextServiceTime(file)
			due := a.Services.DueServices(file, event, time.Now())
			names := make([]string, 0, len(due))
			for _, def := range due {
				names = append(names, def.Name)
			}
			rows = append(rows, []string{file.Path, file.Location.Name(), formatTime(next, ok), strings.Join(names, ", ")})
			return nil
		})
		if err != nil {
			return err
		}

		if !pathsOnly {
			fmt.Println(renderTable([]string{"Path", "Location", "Next Due", "Due Services"}, rows, nil))
			fmt.Printf("%d candidates\n", len(rows))
		}
		return nil
	},
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&selectLocations, "location", "l", nil, "Storage locations to examine (repeatable)")
	cmd.Flags().StringVar(&selectPolicy, "policy", "plain", "Traversal policy: plain, ocfl or registered")
	cmd.Flags().BoolVar(&followSymlinks, "follow-symlinks", false, "Check symlinked objects at their target")
}

func init() {
	addSelectionFlags(candidatesCmd)
	candidatesCmd.Flags().BoolVarP(&forceAll, "force", "f", false, "List every registered object regardless of due dates")
	candidatesCmd.Flags().StringVar(&candidatesEvent, "event", domain.EventPreserve, "Event whose services are considered")
	candidatesCmd.Flags().BoolVar(&pathsOnly, "paths-only", false, "Print one path per line instead of a table")
	rootCmd.AddCommand(candidatesCmd)
}
