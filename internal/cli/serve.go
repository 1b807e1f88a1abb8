package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"proctor-service/internal/config"
	httpapi "proctor-service/internal/http"
	"proctor-service/internal/registry"
	"proctor-service/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the detection models and serve the webcam analysis API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context(), appConfig, appLog)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// models load before the listener opens; a missing file stops startup
	models, err := registry.Load(registryConfig(cfg.Models), log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load detection models")
		return err
	}
	defer func() {
		if err := models.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release detection models")
		}
	}()

	proctorService := service.NewProctorService(
		service.NewFrameAnalyzer(),
		models.Detectors(),
		service.Options{
			Timeout:       cfg.Analysis.Timeout,
			MaxConcurrent: cfg.Analysis.MaxConcurrent,
		},
		log,
	)
	handler := httpapi.NewHandler(proctorService, log)
	router := httpapi.NewRouter(cfg, handler, log)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
