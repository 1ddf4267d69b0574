//go:build sqlite || all_adapters

package sqlite

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
			Type:        models.DatabaseTypeSQLite,
			DisplayName: models.DatabaseTypeSQLite.DisplayName(),
			Description: "Read SQLite 3 database files (pure Go driver)",
			Features:    Features,
		},
		Factory: func(ctx context.Context, secret *crypto.Secret, cfg *config.Config, logger *zap.Logger) (datasource.Adapter, error) {
			connString, err := secret.Reveal()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open sqlite", err)
			}
			dsn, err := ParseConnectionString(connString)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open sqlite", err)
			}
			return NewAdapter(ctx, dsn, cfg, logger)
		},
	})
}
