package cellar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
)

// Placer maps record identities to blob keys. Keys are an HMAC-SHA256 of the
// namespace, id and content generation under the store secret, sharded two
// levels deep, so a key cannot be derived from an id without the secret.
type Placer struct {
	secret []byte
}

// NewPlacer returns a Placer keyed by secret. The secret must not be empty.
func NewPlacer(secret string) (*Placer, error) {
	if secret == "" {
		return nil, errors.New("new placer: secret cannot be empty")
	}
	return &Placer{secret: []byte(secret)}, nil
}

// Place returns the blob key for one generation of a record's content,
// e.g. "3f/a2/3fa2...". Every content write uses a new generation.
func (p *Placer) Place(namespace, id, generation string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(namespace))
	mac.Write([]byte{0})
	mac.Write([]byte(id))
	mac.Write([]byte{0})
	mac.Write([]byte(generation))
	sum := hex.EncodeToString(mac.Sum(nil))

	return path.Join(sum[0:2], sum[2:4], sum)
}
