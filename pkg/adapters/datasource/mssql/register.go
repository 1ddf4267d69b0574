//go:build mssql || all_adapters

package mssql

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
			Type:        models.DatabaseTypeSQLServer,
			DisplayName: models.DatabaseTypeSQLServer.DisplayName(),
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
			Features:    Features,
		},
		Factory: func(ctx context.Context, secret *crypto.Secret, cfg *config.Config, logger *zap.Logger) (datasource.Adapter, error) {
			connString, err := secret.Reveal()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open sqlserver", err)
			}
			mc, conn, err := ParseConnectionString(connString, cfg.Connection)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidParameters, "open sqlserver", err)
			}
			return NewAdapter(ctx, mc, conn, cfg, logger)
		},
	})
}
