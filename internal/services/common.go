package services

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	perrors "github.com/fletar/fletar-backend/internal/pkg/errors"
)

// timeNow is swapped in tests.
var timeNow = func() time.Time { return time.Now().UTC() }

var (
	errUnauthenticated = apierr.New(http.StatusUnauthorized, "unauthorized", perrors.ErrUnauthorized)
	errUserBlocked     = apierr.Forbidden("user_blocked")
)

// currentUser loads the caller attached by the auth middleware.
func currentUser(dbc dbctx.Context, userRepo repos.UserRepo) (*types.User, error) {
	userID := ctxutil.UserID(dbc.Ctx)
	if userID == uuid.Nil {
		return nil, errUnauthenticated
	}
	u, err := userRepo.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errUnauthenticated
	}
	if u.Blocked {
		return nil, errUserBlocked
	}
	return u, nil
}

func requireUserType(u *types.User, want types.UserType) error {
	if u.UserType != want {
		return apierr.Forbidden("wrong_user_type")
	}
	return nil
}

func trimTo(s string, max int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func background(ctx context.Context) context.Context {
	return context.WithoutCancel(ctxutil.Default(ctx))
}

// finite reports whether every value is a real number. ParseFloat accepts
// "Inf" and "NaN", and neither survives JSON encoding.
func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
