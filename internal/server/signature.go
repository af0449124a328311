package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// Signature header names. GitHub sends both on current webhooks; the
// SHA-256 header is preferred and the legacy one is only consulted for apps
// that opted into SHA-1 compatibility.
const (
	SignatureHeader       = "X-Hub-Signature-256"
	SignatureHeaderLegacy = "X-Hub-Signature"
)

// Signature verification failure classes. The handler maps these onto
// distinct HTTP statuses (403 vs 501).
var (
	ErrMissingSignature     = errors.New("missing signature header")
	ErrMalformedSignature   = errors.New("malformed signature header")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrSignatureMismatch    = errors.New("signature mismatch")
)

// VerifySignature verifies an algorithm-tagged HMAC signature header of the
// form "<algorithm>=<hexdigest>" against the raw payload.
//
// sha256 is always accepted. sha1 is accepted only when allowSHA1 is set;
// otherwise it is treated as unsupported. Comparison is constant-time.
func VerifySignature(payload []byte, signature, secret string, allowSHA1 bool) error {
	if signature == "" {
		return ErrMissingSignature
	}

	// Signature format: "<algorithm>=<hex_digest>"
	algorithm, digest, found := strings.Cut(signature, "=")
	if !found || algorithm == "" || digest == "" {
		return ErrMalformedSignature
	}

	var newHash func() hash.Hash
	switch algorithm {
	case "sha256":
		newHash = sha256.New
	case "sha1":
		if !allowSHA1 {
			return ErrUnsupportedAlgorithm
		}
		newHash = sha1.New
	default:
		return ErrUnsupportedAlgorithm
	}

	// Compute expected HMAC over the raw body
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(expectedMAC), []byte(digest)) {
		return ErrSignatureMismatch
	}

	return nil
}

// SignatureFromRequest picks the signature header: the SHA-256 header when
// present, otherwise the legacy header. Whether the legacy algorithm is
// actually accepted is decided by VerifySignature.
func SignatureFromRequest(get func(string) string) string {
	if sig := get(SignatureHeader); sig != "" {
		return sig
	}
	return get(SignatureHeaderLegacy)
}
