package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const envelopeVersion = "aes-gcm-v1"

var ErrInvalidKey = errors.New("encryption key must be base64 of 32 bytes")

var ErrUndecryptable = errors.New("credential payload cannot be decrypted with the configured keys")

type envelope struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// Sealer encrypts credential payloads with AES-GCM. The service name is bound
// as additional data so a payload cannot be moved to another service row.
// Without a primary key payloads are stored as plain JSON.
type Sealer struct {
	primary  cipher.AEAD
	previous cipher.AEAD
}

func NewSealer(primaryKey, previousKey string) (*Sealer, error) {
	s := &Sealer{}
	if k := strings.TrimSpace(primaryKey); k != "" {
		gcm, err := newGCM(k)
		if err != nil {
			return nil, fmt.Errorf("credentials encryption key: %w", err)
		}
		s.primary = gcm
	}
	if k := strings.TrimSpace(previousKey); k != "" && k != strings.TrimSpace(primaryKey) {
		gcm, err := newGCM(k)
		if err != nil {
			return nil, fmt.Errorf("credentials previous encryption key: %w", err)
		}
		s.previous = gcm
	}
	return s, nil
}

func (s *Sealer) Enabled() bool {
	return s != nil && s.primary != nil
}

func (s *Sealer) Seal(service string, plain []byte) ([]byte, error) {
	if !s.Enabled() {
		return plain, nil
	}
	nonce := make([]byte, s.primary.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := s.primary.Seal(nil, nonce, plain, additionalData(service))
	return json.Marshal(envelope{
		Enc:   envelopeVersion,
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	})
}

// Open returns the plaintext. stale is true when the payload was not written
// under the current primary key and should be sealed again.
func (s *Sealer) Open(service string, raw []byte) (plain []byte, stale bool, err error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Enc != envelopeVersion || env.Nonce == "" || env.Data == "" {
		return raw, s.Enabled(), nil
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, false, ErrUndecryptable
	}
	ct, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, false, ErrUndecryptable
	}
	if s == nil {
		return nil, false, ErrUndecryptable
	}
	ad := additionalData(service)
	if s.primary != nil {
		if pt, err := s.primary.Open(nil, nonce, ct, ad); err == nil {
			return pt, false, nil
		}
	}
	if s.previous != nil {
		if pt, err := s.previous.Open(nil, nonce, ct, ad); err == nil {
			return pt, true, nil
		}
	}
	return nil, false, ErrUndecryptable
}

func additionalData(service string) []byte {
	return []byte(strings.TrimSpace(strings.ToLower(service)))
}

// parseKey accepts only standard base64 that decodes to exactly 32 bytes.
func parseKey(k string) ([]byte, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidKey)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("%w: decodes to %d bytes, want 32", ErrInvalidKey, len(keyBytes))
	}
	return keyBytes, nil
}

func newGCM(key string) (cipher.AEAD, error) {
	keyBytes, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
