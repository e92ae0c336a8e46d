package tests

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"docvault/docvault/auth"
	"docvault/docvault/schema"
	"docvault/docvault/services"
	"docvault/docvault/storage"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	docVault services.DocVault
	api      chi.Router
	store    storage.ObjectStore
	google   *providerStub
	apple    *providerStub
}

// providerStub signs identity tokens with a locally generated key so that
// federated logins can be exercised against a verifier holding the matching
// public key set.
type providerStub struct {
	issuer   string
	audience string
	key      jwk.Key
}

func newProviderStub(t *testing.T, issuer, audience string) *providerStub {
	rawKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	key, err := jwk.FromRaw(rawKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := key.Set(jwk.KeyIDKey, "stub-key"); err != nil {
		t.Fatal(err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatal(err)
	}

	return &providerStub{issuer: issuer, audience: audience, key: key}
}

func (p *providerStub) verifier(t *testing.T) *auth.OidcVerifier {
	pub, err := p.key.PublicKey()
	if err != nil {
		t.Fatal(err)
	}

	keys := jwk.NewSet()
	if err := keys.AddKey(pub); err != nil {
		t.Fatal(err)
	}

	return auth.NewOidcVerifier(p.issuer, p.audience, keys)
}

func (p *providerStub) idToken(t *testing.T, subject, email, givenName, familyName string) string {
	builder := jwt.NewBuilder().
		Issuer(p.issuer).
		Audience([]string{p.audience}).
		Subject(subject).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Claim("email", email)
	if givenName != "" {
		builder = builder.Claim("given_name", givenName)
	}
	if familyName != "" {
		builder = builder.Claim("family_name", familyName)
	}

	token, err := builder.Build()
	if err != nil {
		t.Fatal(err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, p.key))
	if err != nil {
		t.Fatal(err)
	}

	return string(signed)
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithStore(t, storage.NewMemoryObjectStore())
}

func setupTestEnvWithStore(t *testing.T, store storage.ObjectStore) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(&schema.User{}, &schema.UserDocument{})
	if err != nil {
		t.Fatal(err)
	}

	google := newProviderStub(t, "https://accounts.google.com", "docvault-client")
	apple := newProviderStub(t, "https://appleid.apple.com", "docvault-service")

	docVault := services.NewDocVault(
		db,
		store,
		google.verifier(t),
		apple.verifier(t),
		auth.NewAuditLogger(new(bytes.Buffer)),
		[]byte("290zcv02ai249"),
	)

	return &testEnv{
		docVault: docVault,
		api:      docVault.Routes(),
		store:    store,
		google:   google,
		apple:    apple,
	}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(tt *testing.T, name string) client {
	c := t.newClient()
	email := name + "@mail.com"
	password := name + "_password"

	if err := c.signup(name, "tester", email, password); err != nil {
		tt.Fatal(err)
	}
	if _, err := c.login(email, password); err != nil {
		tt.Fatal(err)
	}

	return c
}

// inflatingStore reports every stored object with a fixed size, so capacity
// exhaustion can be triggered without writing gigabytes in tests.
type inflatingStore struct {
	storage.ObjectStore

	reportedSize int64
}

func (s *inflatingStore) List(ctx context.Context, prefix, continuationToken string) (storage.ListPage, error) {
	page, err := s.ObjectStore.List(ctx, prefix, continuationToken)
	if err != nil {
		return storage.ListPage{}, err
	}
	for i := range page.Objects {
		page.Objects[i].Size = s.reportedSize
	}
	return page, nil
}
