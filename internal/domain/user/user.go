package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserType string

const (
	UserTypeDador     UserType = "dador"
	UserTypeCamionero UserType = "camionero"
)

func (t UserType) Valid() bool {
	return t == UserTypeDador || t == UserTypeCamionero
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string         `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password        string         `gorm:"not null;column:password" json:"-"`
	FirstName       string         `gorm:"not null;column:first_name" json:"first_name"`
	LastName        string         `gorm:"not null;column:last_name" json:"last_name"`
	Phone           string         `gorm:"column:phone" json:"phone,omitempty"`
	CompanyName     string         `gorm:"column:company_name" json:"company_name,omitempty"`
	CUIT            string         `gorm:"column:cuit" json:"cuit,omitempty"`
	UserType        UserType       `gorm:"column:user_type;not null;index" json:"user_type"`
	Role            Role           `gorm:"column:role;not null;index" json:"role"`
	Blocked         bool           `gorm:"column:blocked;not null" json:"blocked"`
	PremiumUntil    *time.Time     `gorm:"column:premium_until" json:"premium_until,omitempty"`
	NotifyEmail     bool           `gorm:"column:notify_email;not null" json:"notify_email"`
	NotifySMS       bool           `gorm:"column:notify_sms;not null" json:"notify_sms"`
	AvatarColor     string         `gorm:"column:avatar_color" json:"avatar_color,omitempty"`
	AvatarBucketKey string         `gorm:"column:avatar_bucket_key" json:"-"`
	AvatarURL       string         `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

func (u *User) IsPremium(now time.Time) bool {
	return u != nil && u.PremiumUntil != nil && u.PremiumUntil.After(now)
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.CompanyName
	}
	return name
}

// PublicProfile is what other users see; no contact data.
type PublicProfile struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CompanyName string    `json:"company_name,omitempty"`
	UserType    UserType  `json:"user_type"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Premium     bool      `json:"premium"`
	MemberSince time.Time `json:"member_since"`
}

func (u *User) Public(now time.Time) PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CompanyName: u.CompanyName,
		UserType:    u.UserType,
		AvatarURL:   u.AvatarURL,
		Premium:     u.IsPremium(now),
		MemberSince: u.CreatedAt,
	}
}

// Contact is only revealed between parties of an accepted postulación
// or when a dador reaches out to a camión posting.
type Contact struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name,omitempty"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
}

func (u *User) Contact() Contact {
	return Contact{
		UserID:      u.ID,
		Name:        u.DisplayName(),
		CompanyName: u.CompanyName,
		Email:       u.Email,
		Phone:       u.Phone,
	}
}
