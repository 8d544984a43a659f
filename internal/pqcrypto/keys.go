package pqcrypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
)

// IdentityKeys agrupa os dois pares de chaves de uma identidade
type IdentityKeys struct {
	SigningPublicKey []byte
	SigningSecretKey []byte
	KEMPublicKey     []byte
	KEMSecretKey     []byte
}

// GenerateIdentityKeys cria um par ML-DSA-44 e um par ML-KEM-512
func GenerateIdentityKeys() (*IdentityKeys, error) {
	spk, ssk, err := mldsa44.GenerateKey(randReader)
	if err != nil {
		return nil, fmt.Errorf("falha ao gerar chave de assinatura: %w", err)
	}
	// MarshalBinary não falha para chaves recém-geradas
	spkBytes, _ := spk.MarshalBinary()
	sskBytes, _ := ssk.MarshalBinary()

	kpk, ksk, err := mlkem512.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("falha ao gerar chave KEM: %w", err)
	}
	kpkBytes, _ := kpk.MarshalBinary()
	kskBytes, _ := ksk.MarshalBinary()

	return &IdentityKeys{
		SigningPublicKey: spkBytes,
		SigningSecretKey: sskBytes,
		KEMPublicKey:     kpkBytes,
		KEMSecretKey:     kskBytes,
	}, nil
}

// Sign assina a mensagem com a chave secreta ML-DSA-44
func Sign(secretKey, message []byte) ([]byte, error) {
	if len(secretKey) != mldsa44.PrivateKeySize {
		return nil, ErrInvalidSecretKeySize
	}
	var sk mldsa44.PrivateKey
	if err := sk.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("chave de assinatura inválida: %w", err)
	}
	sig := make([]byte, mldsa44.SignatureSize)
	if err := mldsa44.SignTo(&sk, message, nil, false, sig); err != nil {
		return nil, fmt.Errorf("falha ao assinar: %w", err)
	}
	return sig, nil
}
