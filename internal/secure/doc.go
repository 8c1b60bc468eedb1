// Package secure keeps access tokens out of ordinary Go memory.
//
// A Token wraps a memguard enclave: the token is encrypted while at rest
// in the process and only decrypted into a locked buffer for the moment it
// is attached to an outgoing request.
//
//	tok := secure.NewToken(clientToken)
//	defer tok.Destroy()
//
//	value, err := tok.Reveal()
//
// If mlock is unavailable memguard falls back to standard allocation; the
// enclave contents stay encrypted either way.
//
// This does NOT protect against an attacker with access to the running
// process or against hardware-level attacks.
package secure
