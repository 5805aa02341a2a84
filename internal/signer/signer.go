// Package signer handles Ed25519 keys and signatures over published index
// roots.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"

	"credledger/internal/hashcodec"
)

// Errors
var (
	ErrInvalidKeyFormat = errors.New("signer: invalid key format")
	ErrUnsupportedKey   = errors.New("signer: unsupported key type (expected Ed25519)")
	ErrKeyDecryption    = errors.New("signer: key is encrypted (passphrase required)")
	ErrKeyExists        = errors.New("signer: key file already exists")
)

const rootDomain = "credledger-root-v1"

// LoadPrivateKey reads an Ed25519 private key from file.
// Accepts OpenSSH PEM, a raw 32-byte seed or a raw 64-byte key.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	switch len(keyData) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(keyData), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(keyData), nil
	}

	return parseOpenSSHKey(keyData)
}

func parseOpenSSHKey(keyData []byte) (ed25519.PrivateKey, error) {
	if block, _ := pem.Decode(keyData); block == nil {
		return nil, ErrInvalidKeyFormat
	}

	parsedKey, err := ssh.ParseRawPrivateKey(keyData)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, ErrKeyDecryption
		}
		return nil, fmt.Errorf("parse key: %w", err)
	}

	switch k := parsedKey.(type) {
	case *ed25519.PrivateKey:
		return *k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, parsedKey)
	}
}

// LoadPublicKey reads an Ed25519 public key in authorized_keys format or as
// 32 raw bytes.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	if len(keyData) == ed25519.PublicKeySize {
		return ed25519.PublicKey(keyData), nil
	}

	pubKey, _, _, _, err := ssh.ParseAuthorizedKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	cryptoPubKey, ok := pubKey.(ssh.CryptoPublicKey)
	if !ok {
		return nil, ErrInvalidKeyFormat
	}

	ed25519PubKey, ok := cryptoPubKey.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, cryptoPubKey.CryptoPublicKey())
	}

	return ed25519PubKey, nil
}

// GenerateKeyFiles creates a new key pair and writes it as an OpenSSH private
// key at privPath and an authorized_keys line at privPath+".pub". Existing
// files are never overwritten.
func GenerateKeyFiles(privPath, comment string) (ed25519.PublicKey, error) {
	pubPath := privPath + ".pub"
	for _, p := range []string{privPath, pubPath} {
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrKeyExists, p)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(privPath), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(sshPub), 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}

	return pub, nil
}

// RootMessage is the byte string signed for a root commitment:
// domain tag, algorithm, root, leaf count and commit time.
func RootMessage(algorithm string, root hashcodec.Hash, leafCount int, committedAt time.Time) []byte {
	msg := make([]byte, 0, len(rootDomain)+1+len(algorithm)+1+hashcodec.Size+16)
	msg = append(msg, rootDomain...)
	msg = append(msg, 0)
	msg = append(msg, algorithm...)
	msg = append(msg, 0)
	msg = append(msg, root[:]...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(leafCount))
	msg = binary.BigEndian.AppendUint64(msg, uint64(committedAt.UnixNano()))
	return msg
}

// Sign generates a 64-byte Ed25519 signature.
func Sign(privKey ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(privKey, message)
}

// Verify checks an Ed25519 signature.
func Verify(pubKey ed25519.PublicKey, message, signature []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubKey, message, signature)
}

// PublicKey extracts the public key from a private key.
func PublicKey(privKey ed25519.PrivateKey) ed25519.PublicKey {
	return privKey.Public().(ed25519.PublicKey)
}
