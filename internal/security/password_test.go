package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Cheap argon2 parameters keep the suite fast; the format is unchanged.
var testArgon2Params = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2HashAndCompare(t *testing.T) {
	h := NewArgon2Hasher(testArgon2Params)

	hash, err := h.Hash("Abcdef12")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.Compare(hash, "Abcdef12")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Compare(hash, "abcdef12")
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := h.Hash("Abcdef12")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ between hashes")
}

func TestBcryptHashAndCompare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("Abcdef12")
	require.NoError(t, err)

	ok, err := h.Compare(hash, "Abcdef12")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Compare(hash, "Wrong123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptRejectsLongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	_, err := h.Hash("Aa1" + strings.Repeat("x", 90))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash("Aa1" + strings.Repeat("x", BcryptMaxPasswordBytes-3))
	assert.NoError(t, err)
}

func TestCompareAcceptsEitherFormat(t *testing.T) {
	argonHash, err := NewArgon2Hasher(testArgon2Params).Hash("Abcdef12")
	require.NoError(t, err)
	bcryptHash, err := NewBcryptHasher(bcrypt.MinCost).Hash("Abcdef12")
	require.NoError(t, err)

	ok, err := NewBcryptHasher(bcrypt.MinCost).Compare(argonHash, "Abcdef12")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewArgon2Hasher(testArgon2Params).Compare(bcryptHash, "Abcdef12")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	_, err := VerifyPassword("plaintext", "x")
	assert.ErrorIs(t, err, ErrUnknownHashFormat)

	_, err = VerifyPassword("$argon2id$v=19$m=1,t=1,p=1$onlysalt", "x")
	assert.Error(t, err)

	_, err = VerifyPassword("$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA", "x")
	assert.Error(t, err)
}

func TestNewPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher("", 0)
	require.NoError(t, err)
	assert.IsType(t, &Argon2Hasher{}, h)

	h, err = NewPasswordHasher(HasherBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	assert.IsType(t, &BcryptHasher{}, h)

	_, err = NewPasswordHasher("md5", 0)
	assert.Error(t, err)
}
