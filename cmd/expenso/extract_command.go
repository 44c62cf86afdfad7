package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/extract"
	"github.com/akovalev/expenso/internal/gcsupload"
	"github.com/akovalev/expenso/internal/logger"
	"github.com/akovalev/expenso/internal/media"
	"github.com/akovalev/expenso/internal/pipeline"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var voice bool
	var save bool

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract a draft transaction from a receipt image or voice memo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			kind := media.KindImage
			if voice {
				kind = media.KindAudio
			}

			raw := media.RawMedia{
				Data:     data,
				MIMEType: detectMIME(args[0]),
			}

			runCtx := cmd.Context()
			log := logger.NewWithLevel(cfg.Logging.Level)

			st, err := ctx.openStore(runCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			uploader, err := gcsupload.NewUploader(runCtx, cfg.Storage.Bucket, cfg.Storage.Folder)
			if err != nil {
				return fmt.Errorf("create uploader: %w", err)
			}
			defer uploader.Close()

			extractor, err := extract.NewGeminiExtractor(runCtx, cfg.Extractor.Model, cfg.Extractor.APIKey)
			if err != nil {
				return fmt.Errorf("create extractor: %w", err)
			}

			orchestrator := pipeline.NewOrchestrator(
				media.NewPreparer(),
				uploader,
				extractor,
				st,
				st,
				time.Duration(cfg.Pipeline.DispatchTimeoutSeconds)*time.Second,
				log,
			)

			draft, err := orchestrator.Run(runCtx, raw, kind, ctx.userID())
			if err != nil {
				return err
			}

			if save {
				tx := &domain.Transaction{
					ID:          uuid.New().String(),
					UserID:      ctx.userID(),
					Name:        draft.Name,
					Description: draft.Description,
					Amount:      draft.Amount,
					Date:        draft.Date,
					ReceiptURL:  draft.ReceiptURL,
					CategoryID:  draft.CategoryID,
					PaymentType: draft.PaymentType,
					CreatedTS:   time.Now(),
				}
				if err := st.InsertTransaction(runCtx, tx); err != nil {
					return fmt.Errorf("save transaction: %w", err)
				}
				return printJSON(cmd, tx)
			}

			return printJSON(cmd, draft)
		},
	}

	cmd.Flags().BoolVar(&voice, "voice", false, "Treat the file as a voice memo instead of a receipt image")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the extracted transaction without review")

	return cmd
}

// detectMIME maps a filename to the upload content type. HEIC needs its own
// entry since the stdlib mime table does not know it on every platform.
func detectMIME(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webm":
		return "audio/webm"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return strings.ToLower(strings.Split(t, ";")[0])
	}
	return "application/octet-stream"
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
