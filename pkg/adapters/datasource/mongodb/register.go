//go:build mongodb || all_adapters

package mongodb

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
			Type:        models.DatabaseTypeMongoDB,
			DisplayName: models.DatabaseTypeMongoDB.DisplayName(),
			Description: "Connect to MongoDB 5.0+ and Atlas; infers collection structure from sampled documents",
			Features:    Features,
		},
		Factory: func(ctx context.Context, secret *crypto.Secret, cfg *config.Config, logger *zap.Logger) (datasource.Adapter, error) {
			connString, err := secret.Reveal()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open mongodb", err)
			}
			opts, conn, err := ParseConnectionString(connString, cfg.Connection)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open mongodb", err)
			}
			return NewAdapter(ctx, opts, conn, cfg, logger)
		},
	})
}
