// Package signing seals report payloads with detached Ed25519 signatures
// over a canonical byte representation, so artifacts stay verifiable
// across reimplementations.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// Algorithm is the only signature algorithm the engine issues.
const Algorithm = "Ed25519"

// SignedArtifact is the stable wire format for a sealed payload.
type SignedArtifact struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key"`
	Algorithm string          `json:"algorithm"`
	Timestamp time.Time       `json:"timestamp"`
}

// Signer holds an Ed25519 key pair.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewSigner loads the base64-encoded private key at keyPath, generating
// and persisting a fresh key pair when the file does not exist.
func NewSigner(keyPath string) (*Signer, error) {
	privateKey, err := loadPrivateKey(keyPath)
	if err != nil {
		log.Warn("signing key not found, generating new key pair")
		publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		if err := savePrivateKey(keyPath, privateKey); err != nil {
			return nil, err
		}
		log.Infof("generated Ed25519 key pair, public key %s", base64.StdEncoding.EncodeToString(publicKey))
		return &Signer{privateKey: privateKey, publicKey: publicKey}, nil
	}

	return &Signer{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// NewSignerFromKey wraps an existing private key. Used by tests and by
// callers that manage key material themselves.
func NewSignerFromKey(privateKey ed25519.PrivateKey) *Signer {
	return &Signer{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}
}

// Sign canonicalizes the payload and returns the sealed artifact.
func (s *Signer) Sign(payload any) (*SignedArtifact, error) {
	canonical, err := CanonicalBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}

	signature := ed25519.Sign(s.privateKey, canonical)

	return &SignedArtifact{
		Payload:   canonical,
		Signature: base64.StdEncoding.EncodeToString(signature),
		PublicKey: base64.StdEncoding.EncodeToString(s.publicKey),
		Algorithm: Algorithm,
		Timestamp: time.Now().UTC(),
	}, nil
}

// PublicKey returns the base64-encoded public key.
func (s *Signer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.publicKey)
}

// RotateKey generates a new key pair, persists it, and returns the new
// public key. Artifacts signed with the old key stay verifiable because
// each artifact carries its own public key.
func (s *Signer) RotateKey(keyPath string) (string, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	if err := savePrivateKey(keyPath, privateKey); err != nil {
		return "", err
	}
	s.privateKey = privateKey
	s.publicKey = publicKey
	log.Info("signing key rotation completed")
	return base64.StdEncoding.EncodeToString(publicKey), nil
}

// Verify recomputes the canonical bytes from the artifact's payload and
// checks the detached signature against the artifact's own public key.
// Any difference in payload content, key, or signature yields false;
// malformed artifacts are a false result, never a panic or a masked pass.
func Verify(artifact *SignedArtifact) bool {
	if artifact == nil || artifact.Algorithm != Algorithm {
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(artifact.Signature)
	if err != nil {
		return false
	}
	publicKey, err := base64.StdEncoding.DecodeString(artifact.PublicKey)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	canonical, err := canonicalizeRaw(artifact.Payload)
	if err != nil {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), canonical, signature)
}

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.PrivateKey(key), nil
}

func savePrivateKey(path string, key ed25519.PrivateKey) error {
	encoded := base64.StdEncoding.EncodeToString(key)
	return os.WriteFile(path, []byte(encoded), 0o600)
}
