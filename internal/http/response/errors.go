package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	perrors "github.com/fletar/fletar-backend/internal/pkg/errors"
)

const pgUniqueViolation = "23505"

// Classify maps err to an HTTP status and a stable code. Unknown errors are
// reported as 500 internal_error.
func Classify(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	if ae, ok := apierr.As(err); ok {
		status := ae.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		return status, ae.Code
	}
	if IsUniqueViolation(err) {
		return http.StatusConflict, "conflict"
	}
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, perrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, perrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, perrors.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, perrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, perrors.ErrLimitReached):
		return http.StatusForbidden, "limit_reached"
	case errors.Is(err, perrors.ErrModuleDisabled):
		return http.StatusForbidden, "module_disabled"
	case errors.Is(err, perrors.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	}
	return http.StatusInternalServerError, "internal_error"
}

// IsUniqueViolation reports duplicate-key failures from Postgres or SQLite.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// RespondErr renders err with the status Classify picks. Internal errors are
// logged by the request logger through c.Error and hidden from the client.
func RespondErr(c *gin.Context, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		RespondError(c, status, code, errors.New("internal server error"))
		return
	}
	RespondError(c, status, code, err)
}
