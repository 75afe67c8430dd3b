package wire

import (
	"crypto/aes"
	"errors"
	"fmt"
)

// ErrCrypto is returned when a frame cannot be enciphered or deciphered,
// typically because the ciphertext is not block aligned.
var ErrCrypto = errors.New("crypto failure")

// BlockSize is the cipher block size of the panel's basic encryption mode.
const BlockSize = aes.BlockSize

// Key normalizes a shared key to the cipher key size. Panels accept keys of
// 1 to 16 bytes and zero-pad them internally; longer keys are truncated.
func Key(shared []byte) []byte {
	key := make([]byte, BlockSize)
	copy(key, shared)
	return key
}

// Encrypt enciphers a payload with the shared key. The input is zero-padded
// to the block size; the true payload length travels in the frame header.
// Pure and stateless, safe for concurrent use.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(Key(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += BlockSize {
		block.Encrypt(out[i:i+BlockSize], padded[i:i+BlockSize])
	}
	return out, nil
}

// Decrypt deciphers a payload with the shared key. It fails with ErrCrypto
// when the ciphertext length is not a multiple of the block size. Any
// padding added by Encrypt is preserved; callers truncate using the frame
// header length.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not block aligned", ErrCrypto, len(ciphertext))
	}
	block, err := aes.NewCipher(Key(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += BlockSize {
		block.Decrypt(out[i:i+BlockSize], ciphertext[i:i+BlockSize])
	}
	return out, nil
}

func pad(b []byte) []byte {
	if len(b)%BlockSize == 0 {
		return b
	}
	padded := make([]byte, paddedLen(len(b)))
	copy(padded, b)
	return padded
}

func paddedLen(n int) int {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}
