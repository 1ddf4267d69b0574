package sqlite

import (
	"errors"
	"strings"

	sqlitedrv "modernc.org/sqlite"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// Primary SQLite result codes; extended codes carry these in the low byte.
const (
	codePerm     = 3
	codeBusy     = 5
	codeLocked   = 6
	codeReadOnly = 8
	codeCantOpen = 14
	codeAuth     = 23
	codeNotADB   = 26
)

// classifyError maps modernc.org/sqlite errors onto apperrors kinds.
func classifyError(err error) error {
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case codePerm, codeAuth, codeReadOnly:
			return apperrors.ErrInsufficientPrivileges
		case codeCantOpen, codeNotADB:
			return apperrors.ErrConnectionFailed
		case codeBusy, codeLocked:
			return apperrors.ErrQueryFailed
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to open database"), strings.Contains(msg, "file is not a database"):
		return apperrors.ErrConnectionFailed
	case strings.Contains(msg, "not authorized"):
		return apperrors.ErrInsufficientPrivileges
	}
	return nil
}
