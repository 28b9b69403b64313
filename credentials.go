package smbc

import (
	"context"
)

// Credentials are the secrets for one authentication attempt. They are not
// retained after the attempt.
type Credentials struct {
	Workgroup string
	Username  string
	Password  string
}

// CredentialResolver supplies credentials for server and share. It is
// called once per authentication attempt, and at most twice per Dial.
// Returning an error aborts authentication.
type CredentialResolver interface {
	Resolve(ctx context.Context, server, share string) (Credentials, error)
}

// CredentialResolverFunc adapts an ordinary function to CredentialResolver.
type CredentialResolverFunc func(ctx context.Context, server, share string) (Credentials, error)

func (f CredentialResolverFunc) Resolve(ctx context.Context, server, share string) (Credentials, error) {
	return f(ctx, server, share)
}

// StaticCredentials always resolves to itself.
type StaticCredentials Credentials

func (c StaticCredentials) Resolve(context.Context, string, string) (Credentials, error) {
	return Credentials(c), nil
}

// BindResolver returns a resolver that passes v to fn on every call, so
// callers can thread their own state through without globals.
func BindResolver[T any](v T, fn func(ctx context.Context, v T, server, share string) (Credentials, error)) CredentialResolver {
	return CredentialResolverFunc(func(ctx context.Context, server, share string) (Credentials, error) {
		return fn(ctx, v, server, share)
	})
}
