package auth

import (
	"context"
	"errors"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"
)

// ErrInvalidIDToken is returned when the identity provider rejects a token.
var ErrInvalidIDToken = errors.New("invalid identity token")

// Identity is what the identity provider vouches for at login.
type Identity struct {
	UID         string
	DisplayName string
	PhotoURL    string
	Email       string
}

// Verifier turns a provider-issued ID token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

// FirebaseVerifier checks Firebase Auth ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

func NewFirebaseVerifier(client *fbauth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if idToken == "" {
		return Identity{}, ErrInvalidIDToken
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	return identityFromClaims(token.UID, token.Claims), nil
}

func identityFromClaims(uid string, claims map[string]interface{}) Identity {
	id := Identity{UID: uid}
	if v, ok := claims["email"].(string); ok {
		id.Email = v
	}
	if v, ok := claims["name"].(string); ok {
		id.DisplayName = v
	}
	if v, ok := claims["picture"].(string); ok {
		id.PhotoURL = v
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Email
	}
	return id
}

// DisabledVerifier rejects every token. It stands in when no identity
// provider is configured.
type DisabledVerifier struct{}

func (DisabledVerifier) Verify(context.Context, string) (Identity, error) {
	return Identity{}, fmt.Errorf("%w: no identity provider configured", ErrInvalidIDToken)
}
