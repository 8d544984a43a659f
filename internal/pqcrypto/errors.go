package pqcrypto

import "errors"

var (
	ErrInvalidSecretKeySize  = errors.New("tamanho de chave secreta inválido")
	ErrInvalidPublicKeySize  = errors.New("tamanho de chave pública inválido")
	ErrInvalidCiphertextSize = errors.New("tamanho de ciphertext KEM inválido")
	ErrInvalidNonceSize      = errors.New("tamanho de nonce inválido")

	// ErrDecryptionFailed indica tag AES-GCM inválida
	ErrDecryptionFailed = errors.New("falha ao decifrar")
)
