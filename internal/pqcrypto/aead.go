package pqcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
)

const (
	aesKeySize   = 32
	aesNonceSize = 12
)

// SealedMessage é o resultado de cifrar uma mensagem para um destinatário
type SealedMessage struct {
	Nonce          []byte // 16 bytes; os 12 primeiros são o IV do AES-GCM
	KEMCiphertext  []byte
	AEADCiphertext []byte
}

// messageKey deriva a chave AES-256: o próprio segredo se tiver 32 bytes, senão SHA-256 dele
func messageKey(sharedSecret []byte) []byte {
	if len(sharedSecret) == aesKeySize {
		return sharedSecret
	}
	sum := sha256.Sum256(sharedSecret)
	return sum[:]
}

// SealMessage encapsula contra a chave KEM do destinatário e cifra o texto com AES-256-GCM
func SealMessage(enc Encapsulator, recipientKEMPublicKey, plaintext []byte) (*SealedMessage, error) {
	nonce, err := RandomBytes(16)
	if err != nil {
		return nil, err
	}
	ct, ss, err := enc.Encapsulate(recipientKEMPublicKey)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(messageKey(ss))
	if err != nil {
		return nil, err
	}
	return &SealedMessage{
		Nonce:          nonce,
		KEMCiphertext:  ct,
		AEADCiphertext: gcm.Seal(nil, nonce[:aesNonceSize], plaintext, nil),
	}, nil
}

// OpenMessage decapsula com a chave secreta KEM e decifra o corpo
func OpenMessage(kemSecretKey, nonce, kemCiphertext, aeadCiphertext []byte) ([]byte, error) {
	if len(nonce) < aesNonceSize {
		return nil, ErrInvalidNonceSize
	}
	ss, err := Decapsulate(kemSecretKey, kemCiphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(messageKey(ss))
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce[:aesNonceSize], aeadCiphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar cifra: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar GCM: %w", err)
	}
	return gcm, nil
}
