package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deepak/photofind/internal/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for GUI clients",
	Long: `Start a local HTTP server exposing search, browse, faces, and
stats endpoints for a GUI frontend. The server binds to localhost by
default; this API has no authentication and is not meant to be exposed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = a.cfg.Server.Port
	}

	var origins []string
	if !a.cfg.Server.CORS.AllowAllOrigins {
		origins = a.cfg.Server.CORS.AllowedOrigins
	}

	router := api.SetupRouter(a.engine, a.faceStore, a.log, &api.RouterConfig{
		Mode:           a.cfg.Server.Mode,
		Version:        Version,
		AllowedOrigins: origins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.log.Infof("Serving API on http://%s", srv.Addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
