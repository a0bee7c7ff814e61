// Package credentials defines the typed credential variants the
// authentication backends consume.
//
// Credentials form a small closed union: a backend dispatches on the concrete
// type and never guesses across kinds.
package credentials

import (
	"crypto/x509"
	"errors"
)

// Kind identifies a credential variant.
type Kind string

// Credential kinds
const (
	// KindPassword is a username/password pair, carried by HTTP Basic or a login form
	KindPassword = Kind("password")

	// KindOAuth2 is an authorization code plus CSRF state pair
	KindOAuth2 = Kind("oauth2")

	// KindClientCert is a client TLS certificate chain
	KindClientCert = Kind("client_cert")
)

// Credentials is the closed union of credential variants.
type Credentials interface {
	// Kind returns the credential variant tag.
	Kind() Kind

	// sealed prevents implementations outside this package.
	sealed()
}

// Password carries a username/password pair and an optional post-login
// redirect target.
type Password struct {
	// User is the claimed principal id. Non-empty.
	User string

	// Password is the cleartext password to verify. Non-empty.
	Password string

	// Next is an optional post-login redirect target.
	Next string
}

// NewPassword builds Password credentials, rejecting empty fields.
func NewPassword(user, password, next string) (Password, error) {
	if user == "" {
		return Password{}, errors.New("username cannot be empty")
	}
	if password == "" {
		return Password{}, errors.New("password cannot be empty")
	}
	return Password{User: user, Password: password, Next: next}, nil
}

// Kind returns KindPassword.
func (Password) Kind() Kind { return KindPassword }

func (Password) sealed() {}

// OAuth2 carries the authorization code returned by the provider together
// with the CSRF state pair: OldState came from the session, NewState from the
// callback query.
type OAuth2 struct {
	// Code is the authorization code to exchange. Non-empty.
	Code string

	// OldState is the CSRF state previously stored in the session. Non-empty.
	OldState string

	// NewState is the state echoed back by the provider. Non-empty.
	NewState string
}

// NewOAuth2 builds OAuth2 credentials, rejecting empty fields.
func NewOAuth2(code, oldState, newState string) (OAuth2, error) {
	if code == "" {
		return OAuth2{}, errors.New("authorization code cannot be empty")
	}
	if oldState == "" {
		return OAuth2{}, errors.New("session CSRF state cannot be empty")
	}
	if newState == "" {
		return OAuth2{}, errors.New("callback CSRF state cannot be empty")
	}
	return OAuth2{Code: code, OldState: oldState, NewState: newState}, nil
}

// Kind returns KindOAuth2.
func (OAuth2) Kind() Kind { return KindOAuth2 }

func (OAuth2) sealed() {}

// ClientCert carries the peer certificate chain exposed by the TLS layer.
// The first certificate is the leaf. Chain verification happened during the
// TLS handshake; backends only re-check that a certificate is present.
type ClientCert struct {
	// PeerCertificates is the verified chain, leaf first.
	PeerCertificates []*x509.Certificate
}

// NewClientCert builds ClientCert credentials, rejecting empty chains.
func NewClientCert(peerCerts []*x509.Certificate) (ClientCert, error) {
	if len(peerCerts) == 0 {
		return ClientCert{}, errors.New("peer certificate chain cannot be empty")
	}
	return ClientCert{PeerCertificates: peerCerts}, nil
}

// Leaf returns the leaf certificate.
func (c ClientCert) Leaf() *x509.Certificate {
	return c.PeerCertificates[0]
}

// Kind returns KindClientCert.
func (ClientCert) Kind() Kind { return KindClientCert }

func (ClientCert) sealed() {}
