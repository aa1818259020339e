// Package credentials defines how encrypted controller credentials are opened.
package credentials

import "context"

// Credentials are the decrypted key/value secrets of a controller,
// for example "email" and "password" or "api_key".
type Credentials map[string]string

// Decrypter opens an encrypted credential blob. It fails on a bad key or a
// malformed blob. Decrypted values must never be persisted again.
type Decrypter interface {
	Decrypt(ctx context.Context, blob string) (Credentials, error)
}

// DecrypterFunc adapts a function to the Decrypter interface.
type DecrypterFunc func(ctx context.Context, blob string) (Credentials, error)

func (f DecrypterFunc) Decrypt(ctx context.Context, blob string) (Credentials, error) {
	return f(ctx, blob)
}
