package docauth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// Actor is the privileged identity the server mints scoped credentials as
type Actor struct {
	Subject string
	Token   *oauth2.Token // nil when the exchange did not go through an identity provider
}

// ActorExchanger trades the server's own login credentials for an Actor.
// CredentialBridge calls it once per process.
type ActorExchanger interface {
	Exchange(ctx context.Context) (*Actor, error)
}

// PasswordExchanger signs the service account in at an OAuth2 identity
// provider with the resource owner password grant
type PasswordExchanger struct {
	Config   *oauth2.Config
	Email    string
	Password string
}

func (e *PasswordExchanger) Exchange(ctx context.Context) (*Actor, error) {
	if e.Config == nil {
		return nil, fmt.Errorf("%w: no oauth2 config", ErrExchangeFailed)
	}
	token, err := e.Config.PasswordCredentialsToken(ctx, e.Email, e.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return &Actor{Subject: e.Email, Token: token}, nil
}

// LocalExchanger checks the service account's password against a bcrypt hash
// held in configuration. Used when there is no external identity provider.
type LocalExchanger struct {
	Email        string
	Password     string
	PasswordHash []byte
}

func (e *LocalExchanger) Exchange(ctx context.Context) (*Actor, error) {
	if e.Email == "" {
		return nil, fmt.Errorf("%w: no actor email configured", ErrExchangeFailed)
	}
	if err := bcrypt.CompareHashAndPassword(e.PasswordHash, []byte(e.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid actor credentials", ErrExchangeFailed)
	}
	return &Actor{Subject: e.Email}, nil
}
