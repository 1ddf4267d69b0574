package mysql

import (
	"errors"
	"net"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// Server error numbers the collector distinguishes.
// See https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	erDBAccessDenied       = 1044
	erAccessDenied         = 1045
	erTableAccessDenied    = 1142
	erColumnAccessDenied   = 1143
	erSpecificAccessDenied = 1227
	erReadOnlyTransaction  = 1792
	erBadDB                = 1049
	erTooManyConnections   = 1040
	erUserLimitReached     = 1203
	erQueryInterrupted     = 1317
	erQueryTimeout         = 3024
)

// classifyError maps go-sql-driver errors onto apperrors kinds.
func classifyError(err error) error {
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erDBAccessDenied, erAccessDenied, erTableAccessDenied, erColumnAccessDenied,
			erSpecificAccessDenied, erReadOnlyTransaction:
			return apperrors.ErrInsufficientPrivileges
		case erBadDB:
			return apperrors.ErrConnectionFailed
		case erTooManyConnections, erUserLimitReached:
			return apperrors.ErrPoolExhausted
		case erQueryInterrupted, erQueryTimeout:
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
	if errors.Is(err, mysqldrv.ErrInvalidConn) {
		return apperrors.ErrConnectionFailed
	}
	return nil
}
