package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/service"
)

var dueEvent string

var dueCmd = &cobra.Command{
	Use:   "due [path]",
	Short: "Show when each preservation service is next due for one object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := location.AbsolutePath(args[0])
		if err != nil {
			return err
		}
		loc, err := a.Registry.LocationForPath(p)
		if err != nil {
			return err
		}
		file := domain.NewFileRecord(p, loc)
		md, err := a.Metadata.Load(ctx, file)
		if err != nil {
			return err
		}

		now := time.Now()
		event := strings.ToLower(dueEvent)
		var rows [][]string
		for _, def := range a.Services.ServicesFor(loc.Name(), event) {
			last := "never"
			if svc := md.Service(def.Name); svc != nil && svc.Timestamp != nil {
				last = domain.FormatTimestamp(*svc.Timestamp)
			}
			next, ok := service.NextRunTime(def, md)
			due := "no"
			if service.ServiceDue(def, md, now) {
				due = "yes"
			}
			rows = append(rows, []string{def.Name, last, formatTime(next, ok), due})
		}

		fmt.Printf("%s (registered %s", file.Path, domain.FormatTimestamp(md.Registered))
		if md.IsDeregistered() {
			fmt.Printf(", deregistered %s", domain.FormatTimestamp(*md.Deregistered))
		}
		fmt.Println(")")
		fmt.Println(renderTable([]string{"Service", "Last Run", "Next Run", "Due"}, rows, nil))
		return nil
	},
}

func init() {
	dueCmd.Flags().StringVar(&dueEvent, "event", domain.EventPreserve, "Event whose services are shown")
	rootCmd.AddCommand(dueCmd)
}
