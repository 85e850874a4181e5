package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/clog"
	"github.com/kit-data-manager/staging/pkg/config"
	"github.com/kit-data-manager/staging/pkg/stagedb"
	"github.com/kit-data-manager/staging/pkg/stagedb/stor"
	"github.com/kit-data-manager/staging/pkg/staging"
	"github.com/kit-data-manager/staging/pkg/staging/prep"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stagingd",
	Short: "Run the staging transfer daemon",
	Long: `stagingd manages the lifecycle of ingest and download transfers:
scheduling, staging-processor assignment, status tracking and periodic
cleanup of expired transfers. It exposes a REST API for staging clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		clog.Setup()
		c := config.MustLoadFromStagingDotenv()

		db := stagedb.MustConnectToDB()
		if err := stagedb.RunMigrations(db); err != nil {
			log.Fatalf("Unable to run migrations: %s", err)
		}

		stors := stor.NewGormStors(db)

		stagingDir := c.MustGetKey("STAGING_DIR")
		log.Infof("Staging Dir: %s", stagingDir)
		handler := prep.NewLocalHandler(stagingDir)

		service := staging.NewService(stors, staging.NewSnapshotObjectRegistry(stors.TreeStor), handler, handler)

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true

		setupRoutes(RouteDependencies{
			e:       e,
			config:  c,
			service: service,
		})

		stopCleanup := startCleanupLoop(service, c)
		defer stopCleanup()

		go handleSignals()

		if err := e.Start(":" + c.GetKeyWithDefault("STAGINGD_PORT", "1360")); err != nil {
			log.Fatalf("Unable to start server: %s", err)
		}
	},
}

// startCleanupLoop runs the expired/removed-transfer cleanup every
// STAGING_CLEANUP_INTERVAL seconds (default hourly) under the system
// context. Returns a func that stops the loop.
func startCleanupLoop(service *staging.Service, c config.Configer) func() {
	interval := time.Duration(c.GetIntKeyWithDefault("STAGING_CLEANUP_INTERVAL", 3600)) * time.Second
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := service.Cleanup(auth.SystemContext()); err != nil {
					log.Errorf("Transfer cleanup failed: %s", err)
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

func handleSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Infof("Got %s signal, shutting down...", sig)
	os.Exit(0)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
