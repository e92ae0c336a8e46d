package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeleted  = "deleted"
)

const (
	LoginSourceEmail  = "email"
	LoginSourceGoogle = "google"
	LoginSourceApple  = "apple"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FirstName string `gorm:"size:100"`
	LastName  string `gorm:"size:100"`

	// Email is lowercased at creation. Uniqueness is enforced only among
	// non-deleted rows, so a deleted account's email can be reused. Every
	// insert is active, which keeps the partial index usable as the
	// find-or-create guard for concurrent federated logins.
	Email    string `gorm:"uniqueIndex:udx_users_email,where:status <> 'deleted';size:254;not null"`
	Password []byte

	// LoginSource records the most recent successful login path, not the
	// path the account was created through.
	LoginSource string `gorm:"size:20;not null;default:'email'"`

	GoogleSubject *string `gorm:"uniqueIndex:udx_users_google_subject,where:status <> 'deleted';size:255"`
	AppleSubject  *string `gorm:"uniqueIndex:udx_users_apple_subject,where:status <> 'deleted';size:255"`

	Status string `gorm:"size:20;not null;default:'active'"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Documents []UserDocument
}

type UserDocument struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;not null;index"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE"`

	// StorageKey always starts with "{UserId}/". Object access checks rely
	// on this prefix.
	StorageKey string `gorm:"size:1024;not null"`

	FileSize     int64  `gorm:"not null"`
	MimeType     string `gorm:"size:255"`
	DocumentType string `gorm:"size:100"`

	UploadDate time.Time

	Status string `gorm:"size:20;not null;default:'active'"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
