package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/ctxutil"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	perrors "github.com/fletar/fletar-backend/internal/pkg/errors"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

const minPasswordLen = 8

var (
	errInvalidCredentials = apierr.New(http.StatusUnauthorized, "invalid_credentials", perrors.ErrUnauthorized)
	errInvalidToken       = apierr.New(http.StatusUnauthorized, "invalid_token", perrors.ErrUnauthorized)
)

type JWTClaims struct {
	Role     string `json:"role"`
	UserType string `json:"utype"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	UserType  string `json:"user_type"`
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"refresh_expires_at"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*types.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, *types.User, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	// HashPassword is exposed for the admin CLI.
	HashPassword(password string) (string, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	avatarService AvatarService
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewAuthService accepts a nil avatarService when object storage is not configured.
func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	avatarService AvatarService,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		avatarService: avatarService,
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 || strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

func (as *authService) Register(ctx context.Context, in RegisterInput) (*types.User, error) {
	email := NormalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, apierr.BadRequest("invalid_email", "email is not valid")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apierr.BadRequest("weak_password", fmt.Sprintf("password must have at least %d characters", minPasswordLen))
	}
	userType := types.UserType(strings.ToLower(strings.TrimSpace(in.UserType)))
	if !userType.Valid() {
		return nil, apierr.BadRequest("invalid_user_type", "user_type must be dador or camionero")
	}
	first := trimTo(in.FirstName, 80)
	last := trimTo(in.LastName, 80)
	if first == "" || last == "" {
		return nil, apierr.BadRequest("invalid_name", "first_name and last_name are required")
	}

	dbc := dbctx.New(ctx)
	exists, err := as.userRepo.EmailExists(dbc, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, apierr.Conflict("email_taken", "email already registered")
	}
	hash, err := as.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &types.User{
		ID:          uuid.New(),
		Email:       email,
		Password:    hash,
		FirstName:   first,
		LastName:    last,
		Phone:       trimTo(in.Phone, 40),
		UserType:    userType,
		Role:        types.RoleUser,
		NotifyEmail: true,
	}
	if as.avatarService != nil {
		if err := as.avatarService.CreateAndUploadUserAvatar(dbc, user); err != nil {
			as.log.Warn("Avatar generation failed; continuing without avatar", "error", err)
		}
	}
	if _, err := as.userRepo.Create(dbc, []*types.User{user}); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	as.log.Info("User registered", "user_id", user.ID, "user_type", user.UserType)
	return user, nil
}

func (as *authService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*TokenPair, *types.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, errInvalidCredentials
	}
	user, err := as.userRepo.GetByEmail(dbctx.New(ctx), email)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, errInvalidCredentials
	}
	if user.Blocked {
		return nil, nil, errUserBlocked
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := as.issueTokens(dbctx.Context{Ctx: ctx, Tx: tx}, user)
		pair = p
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, errInvalidToken
	}
	var pair *TokenPair
	expired := false
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := as.userTokenRepo.GetByRefreshToken(dbc, refreshToken)
		if err != nil {
			return fmt.Errorf("load refresh token: %w", err)
		}
		if existing == nil {
			return errInvalidToken
		}
		if err := as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{existing.ID}); err != nil {
			return fmt.Errorf("remove old token: %w", err)
		}
		if existing.ExpiresAt.Before(timeNow()) {
			expired = true
			return nil
		}
		user, err := as.userRepo.GetByID(dbc, existing.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return errInvalidToken
		}
		if user.Blocked {
			return errUserBlocked
		}
		pair, err = as.issueTokens(dbc, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, errInvalidToken
	}
	return pair, nil
}

func (as *authService) issueTokens(dbc dbctx.Context, user *types.User) (*TokenPair, error) {
	access, err := as.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	expiresAt := timeNow().Add(as.refreshTTL)
	tok := &types.UserToken{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
	if _, err := as.userTokenRepo.Create(dbc, []*types.UserToken{tok}); err != nil {
		return nil, fmt.Errorf("create user token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(as.accessTTL / time.Second),
		ExpiresAt:    expiresAt,
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (as *authService) Logout(ctx context.Context) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return errUnauthenticated
	}
	dbc := dbctx.New(ctx)
	tok, err := as.userTokenRepo.GetByAccessToken(dbc, rd.TokenString)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if tok == nil {
		return nil
	}
	return as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{tok.ID})
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	now := timeNow()
	claims := JWTClaims{
		Role:     string(user.Role),
		UserType: string(user.UserType),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, errUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(timeNow))
	if err != nil {
		return ctx, errInvalidToken
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, errInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, errInvalidToken
	}
	tok, err := as.userTokenRepo.GetByAccessToken(dbctx.New(ctx), tokenString)
	if err != nil {
		return ctx, fmt.Errorf("load token: %w", err)
	}
	if tok == nil || tok.UserID != userID {
		return ctx, errInvalidToken
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		Role:        claims.Role,
		UserType:    claims.UserType,
	}), nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
