package cli

import (
	"context"
	"fmt"

	"superexam-session-service/internal/config"
	"superexam-session-service/internal/domain"
	"superexam-session-service/internal/infra/memory"
	"superexam-session-service/internal/logger"

	"github.com/spf13/cobra"
)

type documentWriter interface {
	SaveDocument(ctx context.Context, doc domain.Document) error
}

// NewSeedCmd copies the fixture documents into the configured document store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var fixtures string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture documents into Postgres or MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
			if fixtures == "" {
				fixtures = cfg.Documents.Fixtures
			}
			docs, err := memory.LoadFixtures(fixtures)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stack, err := openBackends(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer stack.Close()
			if stack.documentWriter == nil {
				return fmt.Errorf("storage driver %q has no document store to seed", cfg.Storage.Driver)
			}
			for _, doc := range docs {
				if err := stack.documentWriter.SaveDocument(ctx, doc); err != nil {
					return fmt.Errorf("seed %s: %w", doc.ID, err)
				}
				log.Info().Str("document_id", doc.ID).Int("questions", len(doc.Questions)).Msg("document seeded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "fixture file (defaults to documents.fixtures)")
	return cmd
}
