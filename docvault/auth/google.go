package auth

import "context"

const (
	googleIssuer  = "https://accounts.google.com"
	googleJwksUrl = "https://www.googleapis.com/oauth2/v3/certs"
)

// NewGoogleVerifier verifies Google ID tokens issued for the given OAuth
// client id. The Google signing keys are fetched from the public JWKS
// endpoint and refreshed in the background for the lifetime of ctx.
func NewGoogleVerifier(ctx context.Context, clientId string) (*OidcVerifier, error) {
	return newRemoteVerifier(ctx, googleIssuer, clientId, googleJwksUrl)
}
