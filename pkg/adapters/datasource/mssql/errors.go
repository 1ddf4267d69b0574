package mssql

import (
	"errors"
	"net"
	"strings"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// Server error numbers the collector distinguishes.
// See https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errObjectPermission   = 229
	errColumnPermission   = 230
	errDatabasePermission = 262
	errNoPermission       = 297
	errServerPermission   = 300
	errReadOnlyDatabase   = 3906
	errLoginFailed        = 18456
	errCannotOpenDatabase = 4060
	errLockTimeout        = 1222
)

// sqlErrorNumber is implemented by go-mssqldb's server errors.
type sqlErrorNumber interface {
	SQLErrorNumber() int32
}

// classifyError maps go-mssqldb errors onto apperrors kinds.
func classifyError(err error) error {
	var numbered sqlErrorNumber
	if errors.As(err, &numbered) {
		switch numbered.SQLErrorNumber() {
		case errObjectPermission, errColumnPermission, errDatabasePermission, errNoPermission,
			errServerPermission, errReadOnlyDatabase, errLoginFailed:
			return apperrors.ErrInsufficientPrivileges
		case errCannotOpenDatabase:
			return apperrors.ErrConnectionFailed
		case errLockTimeout:
			return apperrors.ErrConnectionTimeout
		}
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.ErrConnectionTimeout
		}
		return apperrors.ErrConnectionFailed
	}
	// Pre-login failures are plain errors.
	if strings.Contains(strings.ToLower(err.Error()), "login error") {
		return apperrors.ErrInsufficientPrivileges
	}
	return nil
}
