package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OTPHasher calcula un hash salado y deliberadamente lento de un codigo.
type OTPHasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) bool
}

const (
	OTPHasherBcrypt   = "bcrypt"
	OTPHasherArgon2id = "argon2id"
)

// NewOTPHasher elige el algoritmo por nombre de configuracion.
func NewOTPHasher(name string, bcryptCost int) (OTPHasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", OTPHasherBcrypt:
		return NewBcryptOTPHasher(bcryptCost), nil
	case OTPHasherArgon2id:
		return NewArgon2OTPHasher(), nil
	}
	return nil, fmt.Errorf("%w: unknown otp hasher %q", ErrConfiguration, name)
}

type bcryptOTPHasher struct {
	cost int
}

func NewBcryptOTPHasher(cost int) OTPHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptOTPHasher{cost: cost}
}

func (h *bcryptOTPHasher) Hash(code string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h *bcryptOTPHasher) Compare(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// argon2OTPHasher codifica como $argon2id$v=19$m=<kib>,t=<iter>,p=<threads>$<salt>$<hash>.
type argon2OTPHasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

func NewArgon2OTPHasher() OTPHasher {
	return &argon2OTPHasher{
		time:    1,
		memory:  32 * 1024,
		threads: 2,
		keyLen:  32,
		saltLen: 16,
	}
}

func (h *argon2OTPHasher) Hash(code string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(code), salt, h.time, h.memory, h.threads, h.keyLen)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *argon2OTPHasher) Compare(hash, code string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var (
		memory, iterations uint32
		threads            uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	actual := argon2.IDKey([]byte(code), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
