// Package pqcrypto encapsula as primitivas pós-quânticas usadas pelo
// servidor e pelo cliente: ML-DSA-44 para assinaturas e ML-KEM-512 para
// encapsulamento de chave.
package pqcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
)

const (
	// KPrimeSize é o tamanho do K' enviado pelo cliente no registro
	KPrimeSize = 16

	SigningPublicKeySize = mldsa44.PublicKeySize
	SignatureSize        = mldsa44.SignatureSize
)

// randReader é a fonte de aleatoriedade; nil usa crypto/rand
var randReader io.Reader

// Verifier verifica uma assinatura. Nunca entra em pânico com entrada malformada.
type Verifier interface {
	Verify(publicKey, message, signature []byte) bool
}

// Encapsulator encapsula um segredo contra uma chave pública KEM
type Encapsulator interface {
	Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error)
}

// Suite é a implementação padrão de Verifier e Encapsulator
type Suite struct{}

// NewSuite cria a suíte ML-DSA-44 / ML-KEM-512
func NewSuite() *Suite {
	return &Suite{}
}

// Verify retorna false para chave, assinatura ou mensagem inválidas
func (Suite) Verify(publicKey, message, signature []byte) (ok bool) {
	if len(publicKey) != mldsa44.PublicKeySize || len(signature) != mldsa44.SignatureSize {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	var pk mldsa44.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false
	}
	return mldsa44.Verify(&pk, message, nil, signature)
}

// Encapsulate gera (ciphertext, segredo compartilhado) para a chave KEM informada
func (Suite) Encapsulate(publicKey []byte) ([]byte, []byte, error) {
	scheme := mlkem512.Scheme()
	if len(publicKey) != scheme.PublicKeySize() {
		return nil, nil, ErrInvalidPublicKeySize
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("chave KEM inválida: %w", err)
	}
	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("falha ao encapsular: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recupera o segredo compartilhado com a chave secreta KEM
func Decapsulate(secretKey, ciphertext []byte) ([]byte, error) {
	scheme := mlkem512.Scheme()
	if len(secretKey) != scheme.PrivateKeySize() {
		return nil, ErrInvalidSecretKeySize
	}
	if len(ciphertext) != scheme.CiphertextSize() {
		return nil, ErrInvalidCiphertextSize
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("chave secreta KEM inválida: %w", err)
	}
	return scheme.Decapsulate(sk, ciphertext)
}

// DeriveKPrime calcula K' = SHA-256(ss)[0:16]
func DeriveKPrime(sharedSecret []byte) []byte {
	sum := sha256.Sum256(sharedSecret)
	out := make([]byte, KPrimeSize)
	copy(out, sum[:KPrimeSize])
	return out
}

// KPrimeEqual compara K' em tempo constante
func KPrimeEqual(sharedSecret, kPrime []byte) bool {
	return subtle.ConstantTimeCompare(DeriveKPrime(sharedSecret), kPrime) == 1
}

// RandomBytes lê n bytes da fonte de aleatoriedade
func RandomBytes(n int) ([]byte, error) {
	r := randReader
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("falha ao gerar bytes aleatórios: %w", err)
	}
	return buf, nil
}

// SetRandReaderForTesting troca a fonte de aleatoriedade; devolve a função de restauração
func SetRandReaderForTesting(r io.Reader) func() {
	original := randReader
	randReader = r
	return func() { randReader = original }
}
