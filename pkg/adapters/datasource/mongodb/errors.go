package mongodb

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// Server error codes the collector distinguishes.
// See https://www.mongodb.com/docs/manual/reference/error-codes/
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeMaxTimeMSExpired     = 50
	codeExceededTimeLimit    = 262
	codeNamespaceNotFound    = 26
)

// classifyError maps mongo-driver errors onto apperrors kinds.
func classifyError(err error) error {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(codeUnauthorized), serverErr.HasErrorCode(codeAuthenticationFailed):
			return apperrors.ErrInsufficientPrivileges
		case serverErr.HasErrorCode(codeMaxTimeMSExpired), serverErr.HasErrorCode(codeExceededTimeLimit):
			return apperrors.ErrConnectionTimeout
		case serverErr.HasErrorCode(codeNamespaceNotFound):
			return apperrors.ErrInvalidParameters
		}
		return nil
	}

	switch {
	case mongo.IsTimeout(err):
		return apperrors.ErrConnectionTimeout
	case errors.Is(err, mongo.ErrClientDisconnected), mongo.IsNetworkError(err):
		return apperrors.ErrConnectionFailed
	}
	// Handshake authentication failures are not server errors.
	msg := err.Error()
	if strings.Contains(msg, "AuthenticationFailed") || strings.Contains(msg, "auth error") {
		return apperrors.ErrInsufficientPrivileges
	}
	if strings.Contains(msg, "server selection error") {
		return apperrors.ErrConnectionFailed
	}
	return nil
}
