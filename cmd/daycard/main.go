// Command daycard is the device side of the planner: a local store that
// replicates with the sync server and ingests calendar feeds through its proxy.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"daycard/internal/calendar"
	"daycard/internal/config"
	"daycard/internal/localstore"
	"daycard/internal/service/syncer"
	"daycard/internal/syncclient"
	pkgconfig "daycard/pkg/config"
	"daycard/pkg/logger"
)

var (
	configDir string
	configEnv string

	cfg    *config.Device
	log    *zap.Logger
	store  *localstore.Store
	client *syncclient.Client
	coord  *syncer.Coordinator
	loc    *time.Location
)

var rootCmd = &cobra.Command{
	Use:           "daycard",
	Short:         "Personal day planner with remote sync",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadDevice(configEnv, configDir)
		if err != nil {
			return err
		}
		log = logger.NewFileLogger(cfg.Device.LogFile)
		loc = cfg.Device.Location()

		store, err = localstore.Open(cfg.DBPath(), log)
		if err != nil {
			return err
		}
		client = syncclient.New(cfg.Sync, cfg.Auth.CookieName, log)
		coord = syncer.NewCoordinator(client, store, log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				log.Warn("Failed to close store", zap.Error(err))
			}
		}
		_ = log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"), "Directory holding base.yaml")
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", pkgconfig.GetConfigEnv(), "Config environment overlay")
}

// newIngestor fetches every feed through the server's proxy.
func newIngestor() *calendar.Ingestor {
	return calendar.NewIngestor(client, calendar.NewParser(loc), log)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
