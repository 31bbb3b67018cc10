package cryptoprovider

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/nacl/sign"
)

// NaclProvider implements Provider entirely on golang.org/x/crypto's NaCl
// sub-packages: box for asymmetric authenticated encryption, secretbox for
// symmetric authenticated encryption, and sign for detached signatures.
// Their primitive sizes line up with the Provider interface exactly.
type NaclProvider struct{}

func NewNaclProvider() *NaclProvider {
	return &NaclProvider{}
}

func (NaclProvider) GenerateKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return [KeySize]byte{}, err
	}
	return key, nil
}

func (NaclProvider) GenerateKeyPair() (publicKey, privateKey [KeySize]byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return [KeySize]byte{}, [KeySize]byte{}, err
	}
	return *pub, *priv, nil
}

func (NaclProvider) GenerateSignKeyPair() (publicKey [SignPublicKeySize]byte, privateKey [SignPrivateKeySize]byte, err error) {
	pub, priv, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return [SignPublicKeySize]byte{}, [SignPrivateKeySize]byte{}, err
	}
	return *pub, *priv, nil
}

func (NaclProvider) GenerateNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return [NonceSize]byte{}, err
	}
	return nonce, nil
}

func (NaclProvider) Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (NaclProvider) Encrypt(plaintext []byte, key [KeySize]byte, nonce [NonceSize]byte) ([]byte, error) {
	return secretbox.Seal(nil, plaintext, &nonce, &key), nil
}

func (NaclProvider) Decrypt(ciphertext []byte, key [KeySize]byte, nonce [NonceSize]byte) ([]byte, error) {
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// AsymmetricEncrypt authenticated-encrypts plaintext for receiverPublic
// using senderPrivate, returning a freshly generated nonce prepended to the
// ciphertext.
func (p NaclProvider) AsymmetricEncrypt(plaintext []byte, receiverPublic, senderPrivate [KeySize]byte) ([]byte, error) {
	nonce, err := p.GenerateNonce()
	if err != nil {
		return nil, err
	}
	sealed := box.Seal(nil, plaintext, &nonce, &receiverPublic, &senderPrivate)
	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce[:]...)
	out = append(out, sealed...)
	return out, nil
}

func (NaclProvider) AsymmetricDecrypt(nonceAndCiphertext []byte, senderPublic, receiverPrivate [KeySize]byte) ([]byte, error) {
	if len(nonceAndCiphertext) < NonceSize {
		return nil, ErrInvalidNonceSize
	}
	var nonce [NonceSize]byte
	copy(nonce[:], nonceAndCiphertext[:NonceSize])
	ciphertext := nonceAndCiphertext[NonceSize:]

	plaintext, ok := box.Open(nil, ciphertext, &nonce, &senderPublic, &receiverPrivate)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Sign returns a detached signature: nacl/sign only produces a signed
// message (signature prepended to the message itself), so this strips the
// message back off and keeps just the leading signature bytes.
func (NaclProvider) Sign(message []byte, privateKey [SignPrivateKeySize]byte) []byte {
	signed := sign.Sign(nil, message, &privateKey)
	return signed[:len(signed)-len(message)]
}

// Verify reconstructs the signed-message form nacl/sign expects and
// confirms it opens to exactly message.
func (NaclProvider) Verify(message, signature []byte, publicKey [SignPublicKeySize]byte) bool {
	signed := make([]byte, 0, len(signature)+len(message))
	signed = append(signed, signature...)
	signed = append(signed, message...)

	opened, ok := sign.Open(nil, signed, &publicKey)
	if !ok {
		return false
	}
	return string(opened) == string(message)
}

var _ Provider = (*NaclProvider)(nil)
