package auth

import "context"

const (
	appleIssuer  = "https://appleid.apple.com"
	appleJwksUrl = "https://appleid.apple.com/auth/keys"
)

// NewAppleVerifier verifies Sign in with Apple identity tokens issued for the
// given service id (the app's bundle or services identifier).
func NewAppleVerifier(ctx context.Context, serviceId string) (*OidcVerifier, error) {
	return newRemoteVerifier(ctx, appleIssuer, serviceId, appleJwksUrl)
}
