// Package cryptoprovider defines the cryptographic operations higher
// layers may use (message confidentiality and integrity, peer signing
// keys) without pinning any particular algorithm choice at the interface
// level, plus one concrete NaCl-backed implementation.
package cryptoprovider

import "errors"

const (
	// KeySize is the length of a symmetric key and of each half of an
	// asymmetric encryption keypair.
	KeySize = 32
	// NonceSize is the length of the nonce used by both symmetric and
	// asymmetric encryption.
	NonceSize = 24
	// SignPublicKeySize and SignPrivateKeySize are the signing keypair
	// sizes; NaCl's Ed25519-based signing uses a 64-byte private key that
	// contains the 32-byte public key as its second half.
	SignPublicKeySize  = 32
	SignPrivateKeySize = 64
	// MACSize is the size of the authentication tag NaCl prepends to
	// ciphertext for both box and secretbox.
	MACSize = 16
)

var (
	ErrDecryptionFailed = errors.New("cryptoprovider: decryption failed")
	ErrInvalidKeySize   = errors.New("cryptoprovider: invalid key size")
	ErrInvalidNonceSize = errors.New("cryptoprovider: invalid nonce size")
	ErrVerifyFailed     = errors.New("cryptoprovider: signature verification failed")
)

// Provider is the contract every concrete cryptographic backend must
// satisfy. No method panics; every failure mode returns an error.
type Provider interface {
	GenerateKey() ([KeySize]byte, error)
	GenerateKeyPair() (publicKey, privateKey [KeySize]byte, err error)
	GenerateSignKeyPair() (publicKey [SignPublicKeySize]byte, privateKey [SignPrivateKeySize]byte, err error)
	GenerateNonce() ([NonceSize]byte, error)

	Hash(data []byte) [32]byte

	Encrypt(plaintext []byte, key [KeySize]byte, nonce [NonceSize]byte) ([]byte, error)
	Decrypt(ciphertext []byte, key [KeySize]byte, nonce [NonceSize]byte) ([]byte, error)

	// AsymmetricEncrypt returns the nonce prepended to the ciphertext.
	AsymmetricEncrypt(plaintext []byte, receiverPublic, senderPrivate [KeySize]byte) ([]byte, error)
	AsymmetricDecrypt(nonceAndCiphertext []byte, senderPublic, receiverPrivate [KeySize]byte) ([]byte, error)

	Sign(message []byte, privateKey [SignPrivateKeySize]byte) []byte
	Verify(message, signature []byte, publicKey [SignPublicKeySize]byte) bool
}
