package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/challenge"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// ChallengeSize é o tamanho do desafio de assinatura (registro e login)
	ChallengeSize = 256
	// DefaultChallengeTTL é a validade dos desafios efêmeros
	DefaultChallengeTTL = 2 * time.Minute
)

// handles entram em chaves do log local e em colunas VARCHAR(64)
var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// Crypto é a capacidade criptográfica consumida pelos serviços
type Crypto interface {
	pqcrypto.Verifier
	pqcrypto.Encapsulator
}

// pendingRegistration é o estado guardado entre init e verify
type pendingRegistration struct {
	m                []byte
	sharedSecret     []byte
	signingPublicKey []byte
	kemPublicKey     []byte
}

// RegistrationChallenge é devolvido pelo init
type RegistrationChallenge struct {
	M          []byte
	Ciphertext []byte
	Nonce      []byte
}

// RegistrationService implementa a prova de posse via KEM + assinatura
type RegistrationService struct {
	store      repository.IdentityStore
	crypto     Crypto
	challenges *challenge.Store[pendingRegistration]
	ttl        time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewRegistrationService cria um novo serviço de registro
func NewRegistrationService(store repository.IdentityStore, crypto Crypto, ttl time.Duration, log zerolog.Logger) *RegistrationService {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &RegistrationService{
		store:      store,
		crypto:     crypto,
		challenges: challenge.NewStore[pendingRegistration](),
		ttl:        ttl,
		now:        time.Now,
		log:        log,
	}
}

// StartJanitor varre desafios expirados periodicamente
func (s *RegistrationService) StartJanitor(interval time.Duration) {
	s.challenges.StartJanitor(interval)
}

// Close para o janitor
func (s *RegistrationService) Close() {
	s.challenges.Close()
}

func registrationKey(handle string, nonce []byte) string {
	return "reg:" + handle + ":" + pqcrypto.ToBase64URL(nonce)
}

// ValidateHandle aplica as regras de formato do handle
func ValidateHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return apperrors.Validation("handle deve ter entre 3 e 64 caracteres entre letras, dígitos, '_', '.' e '-'")
	}
	return nil
}

// Init sorteia o desafio, encapsula contra a chave KEM declarada e guarda o estado.
// Nenhuma identidade é criada aqui.
func (s *RegistrationService) Init(ctx context.Context, handle string, signingPublicKey, kemPublicKey []byte) (*RegistrationChallenge, error) {
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	if len(signingPublicKey) != pqcrypto.SigningPublicKeySize {
		return nil, apperrors.Validation("chave de assinatura com tamanho inválido")
	}

	ct, ss, err := s.crypto.Encapsulate(kemPublicKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "chave KEM inválida", err)
	}

	m, err := pqcrypto.RandomBytes(ChallengeSize)
	if err != nil {
		return nil, apperrors.Internal("falha ao gerar desafio", err)
	}
	nonce, err := pqcrypto.RandomBytes(models.NonceSize)
	if err != nil {
		return nil, apperrors.Internal("falha ao gerar nonce", err)
	}

	s.challenges.Put(registrationKey(handle, nonce), pendingRegistration{
		m:                m,
		sharedSecret:     ss,
		signingPublicKey: signingPublicKey,
		kemPublicKey:     kemPublicKey,
	}, s.ttl)

	s.log.Debug().Str("handle", handle).Msg("desafio de registro emitido")
	return &RegistrationChallenge{M: m, Ciphertext: ct, Nonce: nonce}, nil
}

// Verify consome o desafio e, se K' e a assinatura conferirem, cria a identidade
func (s *RegistrationService) Verify(ctx context.Context, handle string, nonce, signature, kPrime []byte) (*models.User, error) {
	pending, ok := s.challenges.Take(registrationKey(handle, nonce))
	if !ok {
		return nil, apperrors.ErrExpired
	}

	if len(kPrime) != pqcrypto.KPrimeSize || !pqcrypto.KPrimeEqual(pending.sharedSecret, kPrime) {
		s.log.Info().Str("handle", handle).Msg("registro recusado: K' não confere")
		return nil, apperrors.ErrKEMMismatch
	}
	if !s.crypto.Verify(pending.signingPublicKey, pending.m, signature) {
		s.log.Info().Str("handle", handle).Msg("registro recusado: assinatura inválida")
		return nil, apperrors.ErrBadSignature
	}

	user := &models.User{
		ID:               uuid.New(),
		Handle:           handle,
		SigningPublicKey: pending.signingPublicKey,
		KEMPublicKey:     pending.kemPublicKey,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrHandleTaken) {
			return nil, apperrors.ErrHandleTaken
		}
		return nil, apperrors.Internal("falha ao salvar usuário", err)
	}

	s.log.Info().Str("handle", handle).Str("user_id", user.ID.String()).Msg("identidade registrada")
	return user, nil
}
