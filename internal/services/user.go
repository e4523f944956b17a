package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fletar/fletar-backend/internal/data/repos"
	types "github.com/fletar/fletar-backend/internal/domain"
	"github.com/fletar/fletar-backend/internal/pkg/apierr"
	"github.com/fletar/fletar-backend/internal/pkg/dbctx"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

var cuitPattern = regexp.MustCompile(`^\d{2}-?\d{8}-?\d$`)

type ProfileInput struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Phone       *string `json:"phone"`
	CompanyName *string `json:"company_name"`
	CUIT        *string `json:"cuit"`
	NotifyEmail *bool   `json:"notify_email"`
	NotifySMS   *bool   `json:"notify_sms"`
}

type PublicProfileView struct {
	types.PublicProfile
	Reputation types.RatingSummary `json:"reputation"`
}

type UserService interface {
	GetMe(ctx context.Context) (*types.User, error)
	UpdateProfile(ctx context.Context, in ProfileInput) (*types.User, error)
	UploadAvatar(ctx context.Context, raw []byte) (*types.User, error)
	GetPublicProfile(ctx context.Context, userID uuid.UUID) (*PublicProfileView, error)
}

type userService struct {
	db               *gorm.DB
	log              *logger.Logger
	userRepo         repos.UserRepo
	calificacionRepo repos.CalificacionRepo
	avatarService    AvatarService
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, calificacionRepo repos.CalificacionRepo, avatarService AvatarService) UserService {
	return &userService{
		db:               db,
		log:              log.With("service", "UserService"),
		userRepo:         userRepo,
		calificacionRepo: calificacionRepo,
		avatarService:    avatarService,
	}
}

func (us *userService) GetMe(ctx context.Context) (*types.User, error) {
	return currentUser(dbctx.New(ctx), us.userRepo)
}

// ValidCUIT checks the format and the mod-11 check digit.
func ValidCUIT(raw string) bool {
	if !cuitPattern.MatchString(raw) {
		return false
	}
	digits := strings.ReplaceAll(raw, "-", "")
	weights := []int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		check = 9
	}
	return int(digits[10]-'0') == check
}

func (us *userService) UpdateProfile(ctx context.Context, in ProfileInput) (*types.User, error) {
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, us.userRepo)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.FirstName != nil {
		v := trimTo(*in.FirstName, 80)
		if v == "" {
			return nil, apierr.BadRequest("invalid_name", "first_name cannot be empty")
		}
		updates["first_name"], u.FirstName = v, v
	}
	if in.LastName != nil {
		v := trimTo(*in.LastName, 80)
		if v == "" {
			return nil, apierr.BadRequest("invalid_name", "last_name cannot be empty")
		}
		updates["last_name"], u.LastName = v, v
	}
	if in.Phone != nil {
		v := trimTo(*in.Phone, 40)
		updates["phone"], u.Phone = v, v
	}
	if in.CompanyName != nil {
		v := trimTo(*in.CompanyName, 120)
		updates["company_name"], u.CompanyName = v, v
	}
	if in.CUIT != nil {
		v := strings.TrimSpace(*in.CUIT)
		if v != "" && !ValidCUIT(v) {
			return nil, apierr.BadRequest("invalid_cuit", "cuit is not valid")
		}
		updates["cuit"], u.CUIT = v, v
	}
	if in.NotifyEmail != nil {
		updates["notify_email"], u.NotifyEmail = *in.NotifyEmail, *in.NotifyEmail
	}
	if in.NotifySMS != nil {
		if *in.NotifySMS && strings.TrimSpace(u.Phone) == "" {
			return nil, apierr.BadRequest("phone_required", "a phone number is required for sms notifications")
		}
		updates["notify_sms"], u.NotifySMS = *in.NotifySMS, *in.NotifySMS
	}
	if len(updates) == 0 {
		return u, nil
	}
	if err := us.userRepo.UpdateFields(dbc, u.ID, updates); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (us *userService) UploadAvatar(ctx context.Context, raw []byte) (*types.User, error) {
	if us.avatarService == nil {
		return nil, apierr.New(503, "avatars_unavailable", fmt.Errorf("avatar storage not configured"))
	}
	dbc := dbctx.New(ctx)
	u, err := currentUser(dbc, us.userRepo)
	if err != nil {
		return nil, err
	}
	if err := us.avatarService.CreateAndUploadUserAvatarFromImage(dbc, u, raw); err != nil {
		return nil, apierr.BadRequest("invalid_image", err.Error())
	}
	if err := us.userRepo.UpdateFields(dbc, u.ID, map[string]interface{}{
		"avatar_bucket_key": u.AvatarBucketKey,
		"avatar_url":        u.AvatarURL,
	}); err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}
	return u, nil
}

func (us *userService) GetPublicProfile(ctx context.Context, userID uuid.UUID) (*PublicProfileView, error) {
	dbc := dbctx.New(ctx)
	u, err := us.userRepo.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.NotFound("user_not_found")
	}
	summary, err := us.calificacionRepo.Summary(dbc, u.ID)
	if err != nil {
		return nil, fmt.Errorf("rating summary: %w", err)
	}
	return &PublicProfileView{PublicProfile: u.Public(timeNow()), Reputation: summary}, nil
}
