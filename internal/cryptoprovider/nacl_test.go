package cryptoprovider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymmetricEncryptDecryptRoundTrip(t *testing.T) {
	p := NewNaclProvider()

	key, err := p.GenerateKey()
	require.NoError(t, err)
	nonce, err := p.GenerateNonce()
	require.NoError(t, err)

	plaintext := []byte("meet at the usual spot")
	ciphertext, err := p.Encrypt(plaintext, key, nonce)
	require.NoError(t, err)

	got, err := p.Decrypt(ciphertext, key, nonce)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	p := NewNaclProvider()

	key, err := p.GenerateKey()
	require.NoError(t, err)
	wrongKey, err := p.GenerateKey()
	require.NoError(t, err)
	nonce, err := p.GenerateNonce()
	require.NoError(t, err)

	ciphertext, err := p.Encrypt([]byte("secret"), key, nonce)
	require.NoError(t, err)

	_, err = p.Decrypt(ciphertext, wrongKey, nonce)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestAsymmetricEncryptDecryptRoundTrip(t *testing.T) {
	p := NewNaclProvider()

	senderPub, senderPriv, err := p.GenerateKeyPair()
	require.NoError(t, err)
	receiverPub, receiverPriv, err := p.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("file transfer offer accepted")
	sealed, err := p.AsymmetricEncrypt(plaintext, receiverPub, senderPriv)
	require.NoError(t, err)

	got, err := p.AsymmetricDecrypt(sealed, senderPub, receiverPriv)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	p := NewNaclProvider()

	pub, priv, err := p.GenerateSignKeyPair()
	require.NoError(t, err)

	message := []byte("peer announcement payload")
	sig := p.Sign(message, priv)

	require.True(t, p.Verify(message, sig, pub), "expected signature to verify")
	require.False(t, p.Verify([]byte("tampered payload"), sig, pub), "expected verification of tampered message to fail")
}

func TestHashIsDeterministic(t *testing.T) {
	p := NewNaclProvider()
	require.Equal(t, p.Hash([]byte("hello")), p.Hash([]byte("hello")))
}
