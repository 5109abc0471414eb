package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zpreserve/internal/app"
	"github.com/zzenonn/zpreserve/internal/config"
	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/logging"
	"github.com/zzenonn/zpreserve/internal/metrics"
)

var (
	cfg             *config.Config
	configFile      string
	metricsTextfile string
)

var rootCmd = &cobra.Command{
	Use:           "zpreserve",
	Short:         "Schedule preservation services for registered objects",
	Long:          "zpreserve finds registered objects whose preservation services are due, across filesystem and object storage locations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if metricsTextfile == "" {
			return nil
		}
		if err := metrics.WriteTextfile(metricsTextfile, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		log.Debugf("Wrote metrics to %s", metricsTextfile)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().String("log_level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the index schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.MigrateIndex(cmd.Context()); err != nil {
			return fmt.Errorf("failed to migrate the index: %w", err)
		}
		fmt.Println("Index initialized successfully")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the index schema and every entry in it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DropIndex(cmd.Context()); err != nil {
			return fmt.Errorf("failed to drop the index: %w", err)
		}
		fmt.Println("Index dropped successfully")
		return nil
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Check the configuration and that every location is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckAvailable(cmd.Context()); err != nil {
			return err
		}

		rows := make([][]string, 0, a.Registry.Len())
		for _, name := range a.Registry.Names() {
			loc, err := a.Registry.Get(name)
			if err != nil {
				return err
			}
			services := a.Services.ServicesFor(name, domain.EventPreserve)
			rows = append(rows, []string{name, string(loc.Type()), loc.Path(), loc.MetadataLocation().Path(), fmt.Sprint(len(services))})
		}
		fmt.Println(renderTable([]string{"Location", "Type", "Path", "Metadata", "Services"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
		fmt.Println("Configuration is valid")
		return nil
	},
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(configFile, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)
}

func newApp(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		if errors.Is(err, app.ErrNoIndex) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
