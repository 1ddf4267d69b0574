package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// SQLSTATE codes the collector distinguishes.
const (
	sqlstateInsufficientPrivilege = "42501"
	sqlstateInvalidAuthorization  = "28000"
	sqlstateInvalidPassword       = "28P01"
	sqlstateInvalidCatalogName    = "3D000"
	sqlstateTooManyConnections    = "53300"
	sqlstateQueryCanceled         = "57014"
	sqlstateReadOnlyTransaction   = "25006"
)

// classifyError maps pgx errors onto apperrors kinds.
func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateInsufficientPrivilege, sqlstateInvalidAuthorization, sqlstateInvalidPassword, sqlstateReadOnlyTransaction:
			return apperrors.ErrInsufficientPrivileges
		case sqlstateInvalidCatalogName:
			return apperrors.ErrConnectionFailed
		case sqlstateTooManyConnections:
			return apperrors.ErrPoolExhausted
		case sqlstateQueryCanceled:
			return apperrors.ErrConnectionTimeout
		}
		return nil
	}
	if pgconn.Timeout(err) {
		return apperrors.ErrConnectionTimeout
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return apperrors.ErrConnectionFailed
	}
	return nil
}
