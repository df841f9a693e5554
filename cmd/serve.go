package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/jsvoboda/facebench/internal/config"
	"github.com/jsvoboda/facebench/internal/subjects"
	"github.com/jsvoboda/facebench/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identification web server",
	Long: `Start the facebench web server.

The server enrolls the current template set and then answers
identification requests: POST a photo to /api/v1/identify and get the
matched subject, distance and accept decision back as JSON.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("metric", "cosine", "Distance metric: cosine, euclidean or euclidean_l2")
	serveCmd.Flags().Float64("threshold", 0, "Acceptance threshold (defaults to the model's known threshold)")
	serveCmd.Flags().Bool("no-threshold", false, "Accept every match regardless of distance")
}

// resolveServeHostPort resolves port and host: an explicit flag wins,
// then WEB_PORT/WEB_HOST, then the flag defaults. Unparsable WEB_PORT
// values are ignored.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	if !cmd.Flags().Changed("port") {
		if s := os.Getenv("WEB_PORT"); s != "" {
			if p, err := strconv.Atoi(s); err == nil && p > 0 {
				port = p
			}
		}
	}

	host := mustGetString(cmd, "host")
	if !cmd.Flags().Changed("host") {
		if s := os.Getenv("WEB_HOST"); s != "" {
			host = s
		}
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	metricName := mustGetString(cmd, "metric")

	ctx := context.Background()
	cfg := config.Load()

	names, err := subjects.Load(filepath.Join(cfg.Experiment.Dir, "names.yaml"))
	if err != nil {
		return fmt.Errorf("failed to load subject names: %w", err)
	}

	gallery, closeCache, err := buildGallery(ctx, cfg, metricName, true)
	if err != nil {
		return err
	}
	defer closeCache()

	threshold := resolveThreshold(cmd, cfg, metricName)
	port, host := resolveServeHostPort(cmd)

	server := web.NewServer(cfg, gallery, names, threshold, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting facebench web server on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
