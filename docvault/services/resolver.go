package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docvault/docvault/auth"
	"docvault/docvault/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Mutation records which change the identity resolver applied to the account
// store while reconciling a federated login.
type Mutation string

const (
	MutationNone    Mutation = "none"
	MutationLinked  Mutation = "linked"
	MutationCreated Mutation = "created"
)

// IdentityResolver maps a verified federated claim set onto exactly one local
// account. Matching order is email first, then provider subject: a verified
// provider email is treated as stronger evidence of identity continuity than
// a previously stored subject id, which also heals accounts whose underlying
// provider subject changed while the email stayed the same.
//
// Local password login never passes through the resolver; it fails closed
// instead of creating or linking accounts.
type IdentityResolver struct {
	db *gorm.DB
}

func NewIdentityResolver(db *gorm.DB) *IdentityResolver {
	return &IdentityResolver{db: db}
}

// Resolve returns the single account the claims map to, creating or linking
// as needed. The returned account never carries a password hash.
func (r *IdentityResolver) Resolve(source string, claims auth.ProviderClaims) (schema.User, Mutation, error) {
	if source != schema.LoginSourceGoogle && source != schema.LoginSourceApple {
		return schema.User{}, MutationNone, fmt.Errorf("login source %v is not a federated provider", source)
	}

	var resolved schema.User
	var mutation Mutation

	err := r.db.Transaction(func(txn *gorm.DB) error {
		user, mut, err := r.resolveInTxn(txn, source, claims)
		if err != nil {
			return err
		}
		resolved, mutation = user, mut
		return nil
	})
	if err != nil {
		return schema.User{}, MutationNone, err
	}

	resolved.Password = nil
	return resolved, mutation, nil
}

func (r *IdentityResolver) resolveInTxn(txn *gorm.DB, source string, claims auth.ProviderClaims) (schema.User, Mutation, error) {
	user, err := schema.GetUserByEmail(claims.Email, txn)
	if err == nil {
		return r.link(txn, user, source, claims, false)
	}
	if !errors.Is(err, schema.ErrUserNotFound) {
		return schema.User{}, MutationNone, err
	}

	user, err = schema.GetUserBySubject(source, claims.Subject, txn)
	if err == nil {
		// The stored email no longer matches the provider's; the claim's
		// email wins.
		return r.link(txn, user, source, claims, true)
	}
	if !errors.Is(err, schema.ErrUserNotFound) {
		return schema.User{}, MutationNone, err
	}

	return r.create(txn, source, claims)
}

// link refreshes an existing account from the latest claims and attaches the
// provider subject. overwriteEmail is set on subject-matched logins, where
// the account was found under a stale email.
func (r *IdentityResolver) link(txn *gorm.DB, user schema.User, source string, claims auth.ProviderClaims, overwriteEmail bool) (schema.User, Mutation, error) {
	// Apple identity tokens carry no name claims; keep the stored names in
	// that case rather than blanking them.
	if claims.GivenName != "" {
		user.FirstName = strings.TrimSpace(claims.GivenName)
	}
	if claims.FamilyName != "" {
		user.LastName = strings.TrimSpace(claims.FamilyName)
	}
	user.LoginSource = source
	setSubject(&user, source, claims.Subject)
	if overwriteEmail {
		user.Email = claims.Email
	}

	result := txn.Save(&user)
	if result.Error != nil {
		slog.Error("sql error updating account during login reconciliation", "user_id", user.Id, "error", result.Error)
		return schema.User{}, MutationNone, schema.ErrDbAccessFailed
	}

	return user, MutationLinked, nil
}

func (r *IdentityResolver) create(txn *gorm.DB, source string, claims auth.ProviderClaims) (schema.User, Mutation, error) {
	user := schema.User{
		Id:          uuid.New(),
		FirstName:   strings.TrimSpace(claims.GivenName),
		LastName:    strings.TrimSpace(claims.FamilyName),
		Email:       claims.Email,
		LoginSource: source,
		Status:      schema.StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	setSubject(&user, source, claims.Subject)

	result := txn.Create(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			// A concurrent login for the same claims won the insert. Re-read
			// and treat as a link instead of surfacing the write conflict.
			return r.resolveAfterConflict(txn, source, claims)
		}
		slog.Error("sql error creating account during login reconciliation", "error", result.Error)
		return schema.User{}, MutationNone, schema.ErrDbAccessFailed
	}

	return user, MutationCreated, nil
}

func (r *IdentityResolver) resolveAfterConflict(txn *gorm.DB, source string, claims auth.ProviderClaims) (schema.User, Mutation, error) {
	user, err := schema.GetUserByEmail(claims.Email, txn)
	if err == nil {
		return r.link(txn, user, source, claims, false)
	}
	if !errors.Is(err, schema.ErrUserNotFound) {
		return schema.User{}, MutationNone, err
	}

	user, err = schema.GetUserBySubject(source, claims.Subject, txn)
	if err != nil {
		return schema.User{}, MutationNone, err
	}
	return r.link(txn, user, source, claims, true)
}

func setSubject(user *schema.User, source, subject string) {
	switch source {
	case schema.LoginSourceGoogle:
		user.GoogleSubject = &subject
	case schema.LoginSourceApple:
		user.AppleSubject = &subject
	}
}
