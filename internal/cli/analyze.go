package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"proctor-service/internal/config"
	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
	"proctor-service/internal/registry"
	"proctor-service/internal/service"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image_path>",
	Short: "Analyze one image file and print the proctoring verdict as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAnalyze(cmd.Context(), args[0], appConfig, appLog, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, imagePath string, cfg *config.Config, log zerolog.Logger, out io.Writer) error {
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	models, err := registry.Load(registryConfig(cfg.Models), log)
	if err != nil {
		return err
	}
	defer models.Close()

	svc := service.NewProctorService(service.NewFrameAnalyzer(), models.Detectors(), service.Options{
		Timeout:       cfg.Analysis.Timeout,
		MaxConcurrent: 1,
	}, log)

	return analyzeFile(ctx, svc, imagePath, out)
}

// analyzeFile prints the verdict mapping and returns an error for any failure
// outcome so the process exits non-zero.
func analyzeFile(ctx context.Context, svc *service.ProctorService, imagePath string, out io.Writer) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", imagePath, err)
	}

	report, err := svc.AnalyzeFrame(ctx, frameFromFile(data))
	if err != nil {
		_ = writeJSON(out, map[string]string{"error": err.Error()})
		return err
	}

	if err := writeJSON(out, report.Result.Body()); err != nil {
		return err
	}
	return report.Result.Err()
}

// frameFromFile accepts either a binary image or a text file holding base64 or a
// data URL.
func frameFromFile(data []byte) proctor.EncodedFrame {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return proctor.EncodedFrame{Payload: base64.StdEncoding.EncodeToString(data)}
	}
	return frame.NewEncodedFrame(strings.TrimSpace(string(data)))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
