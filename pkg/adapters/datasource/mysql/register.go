//go:build mysql || all_adapters

package mysql

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
			Type:        models.DatabaseTypeMySQL,
			DisplayName: models.DatabaseTypeMySQL.DisplayName(),
			Description: "Connect to MySQL 8.0+ and Aurora MySQL",
			Features:    Features,
		},
		Factory: func(ctx context.Context, secret *crypto.Secret, cfg *config.Config, logger *zap.Logger) (datasource.Adapter, error) {
			connString, err := secret.Reveal()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open mysql", err)
			}
			mc, conn, err := ParseConnectionString(connString, cfg.Connection)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open mysql", err)
			}
			return NewAdapter(ctx, mc, conn, cfg, logger)
		},
	})
}
