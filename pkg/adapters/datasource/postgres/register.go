//go:build postgres || all_adapters

package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/adapters/datasource"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/crypto"
	"github.com/EvilBit-Labs/dbsurveyor/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        models.DatabaseTypePostgreSQL,
			DisplayName: models.DatabaseTypePostgreSQL.DisplayName(),
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
			Features:    Features,
		},
		Factory: func(ctx context.Context, secret *crypto.Secret, cfg *config.Config, logger *zap.Logger) (datasource.Adapter, error) {
			connString, err := secret.Reveal()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open postgres", err)
			}
			pc, conn, err := ParseConnectionString(connString, cfg.Connection)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open postgres", err)
			}
			return NewAdapter(ctx, pc, conn, cfg, logger)
		},
	})
}
