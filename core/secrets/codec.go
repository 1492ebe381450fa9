// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package secrets implements the transit codec that lets a bundle
// cross a network boundary without exposing embedded key material or
// passwords at rest. Each secret is encrypted with a fresh data key;
// the data key is wrapped under a key derived from the operator's
// passphrase. Wrap and Unwrap are byte exact inverses.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32
	saltSize   = 16
	iterations = 10000
	prefix     = "$L7C2$"
)

// ErrBadPassphrase is returned when the wrapped key cannot be opened
// with the supplied passphrase, or the ciphertext fails integrity
// checking.
const ErrBadPassphrase = errors.ConstError("passphrase does not match or data is corrupt")

// Wrapped is the transit form of one secret value: the ciphertext of
// the secret under a random data key, plus that data key wrapped under
// the passphrase derived key. Both halves are self describing strings
// safe to embed in a serialized bundle.
type Wrapped struct {
	Ciphertext string
	WrappedKey string
}

// Wrap encrypts plaintext for transit under the passphrase.
func Wrap(plaintext []byte, passphrase string) (Wrapped, error) {
	dataKey := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return Wrapped{}, errors.Trace(err)
	}
	ciphertext, err := seal(dataKey, plaintext)
	if err != nil {
		return Wrapped{}, errors.Trace(err)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Wrapped{}, errors.Trace(err)
	}
	kek := deriveKey(passphrase, salt)
	wrappedKey, err := seal(kek, dataKey)
	if err != nil {
		return Wrapped{}, errors.Trace(err)
	}
	return Wrapped{
		Ciphertext: prefix + encode(ciphertext),
		WrappedKey: prefix + encode(salt) + "$" + encode(wrappedKey),
	}, nil
}

// Unwrap reverses Wrap, reproducing the exact plaintext bytes.
func Unwrap(w Wrapped, passphrase string) ([]byte, error) {
	ciphertext, err := decodePart(w.Ciphertext, 1, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	salt, err := decodePart(w.WrappedKey, 2, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	wrappedKey, err := decodePart(w.WrappedKey, 2, 1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	kek := deriveKey(passphrase, salt)
	dataKey, err := open(kek, wrappedKey)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	plaintext, err := open(dataKey, ciphertext)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Trace(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Trace(err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Trace(err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Trace(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.NotValidf("sealed data")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, box, nil)
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// decodePart splits the payload of a prefixed transit string on "$"
// and decodes the part at index. parts is the expected part count.
func decodePart(s string, parts, index int) ([]byte, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, errors.NotValidf("transit string without %q prefix", prefix)
	}
	split := strings.Split(s[len(prefix):], "$")
	if len(split) != parts {
		return nil, errors.NotValidf("transit string with %d parts", len(split))
	}
	b, err := base64.StdEncoding.DecodeString(split[index])
	if err != nil {
		return nil, errors.Annotate(err, "decoding transit string")
	}
	return b, nil
}
