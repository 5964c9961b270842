package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptSecret(testKey, "Netflix#2025!")
	require.NoError(t, err)
	require.NotEmpty(t, enc)
	assert.NotContains(t, enc, "Netflix")

	plain, err := DecryptSecret(testKey, enc)
	require.NoError(t, err)
	assert.Equal(t, "Netflix#2025!", plain)
}

func TestEncryptSecret_KeyValidation(t *testing.T) {
	_, err := EncryptSecret("", "secret")
	assert.Error(t, err)

	_, err = EncryptSecret("short-key", "secret")
	assert.Error(t, err)
}

func TestDecryptSecret_WrongKey(t *testing.T) {
	enc, err := EncryptSecret(testKey, "secret")
	require.NoError(t, err)

	otherKey := strings.Repeat("x", 32)
	_, err = DecryptSecret(otherKey, enc)
	assert.Error(t, err)
}

func TestDecryptSecret_Garbage(t *testing.T) {
	_, err := DecryptSecret(testKey, "not-base64!!")
	assert.Error(t, err)

	_, err = DecryptSecret(testKey, "YWJj") // 合法base64但比nonce短
	assert.Error(t, err)
}

func TestEncryptSecret_NonDeterministic(t *testing.T) {
	a, err := EncryptSecret(testKey, "same-input")
	require.NoError(t, err)
	b, err := EncryptSecret(testKey, "same-input")
	require.NoError(t, err)
	// 随机nonce, 同明文两次加密结果不同
	assert.NotEqual(t, a, b)
}
