package schema

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrDbAccessFailed   = errors.New("db access failed")
)

// notDeleted scopes a query to rows that have not been soft deleted.
func notDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("status <> ?", StatusDeleted)
}

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := notDeleted(db).First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User

	result := notDeleted(db).First(&user, "email = ?", strings.ToLower(email))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by email", "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

// GetUserBySubject looks up an account by a federated provider subject id.
// source must be LoginSourceGoogle or LoginSourceApple.
func GetUserBySubject(source, subject string, db *gorm.DB) (User, error) {
	var user User

	column := "google_subject"
	if source == LoginSourceApple {
		column = "apple_subject"
	}

	result := notDeleted(db).First(&user, column+" = ?", subject)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by subject", "source", source, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

// GetUserDocument returns a document only if it belongs to userId and has not
// been soft deleted.
func GetUserDocument(documentId, userId uuid.UUID, db *gorm.DB) (UserDocument, error) {
	var doc UserDocument

	result := notDeleted(db).First(&doc, "id = ? AND user_id = ?", documentId, userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return doc, ErrDocumentNotFound
		}
		slog.Error("sql error in get user document", "document_id", documentId, "user_id", userId, "error", result.Error)
		return doc, ErrDbAccessFailed
	}

	return doc, nil
}
