package service

import (
	"context"
	"errors"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/auth"
	"pqchat-backend/internal/challenge"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/repository"

	"github.com/rs/zerolog"
)

// DefaultLoginFailureDelay é o atraso fixo aplicado a toda falha de login
const DefaultLoginFailureDelay = 150 * time.Millisecond

type pendingLogin struct {
	handle    string
	challenge []byte
}

// LoginChallenge é devolvido por Challenge
type LoginChallenge struct {
	Challenge []byte
	Nonce     []byte
}

// Session é o resultado de um login bem-sucedido
type Session struct {
	User  *models.User
	Token string
}

// LoginService implementa o desafio-resposta por assinatura
type LoginService struct {
	store        repository.IdentityStore
	verifier     pqcrypto.Verifier
	tokenService *auth.TokenService
	challenges   *challenge.Store[pendingLogin]
	ttl          time.Duration
	failureDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration)
	log          zerolog.Logger
}

// NewLoginService cria um novo serviço de login
func NewLoginService(store repository.IdentityStore, verifier pqcrypto.Verifier, tokenService *auth.TokenService, ttl, failureDelay time.Duration, log zerolog.Logger) *LoginService {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &LoginService{
		store:        store,
		verifier:     verifier,
		tokenService: tokenService,
		challenges:   challenge.NewStore[pendingLogin](),
		ttl:          ttl,
		failureDelay: failureDelay,
		sleep:        sleepCtx,
		log:          log,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// StartJanitor varre desafios expirados periodicamente
func (s *LoginService) StartJanitor(interval time.Duration) {
	s.challenges.StartJanitor(interval)
}

// Close para o janitor
func (s *LoginService) Close() {
	s.challenges.Close()
}

// Challenge emite um desafio de 256 bytes para o handle. Não revela se o handle existe.
func (s *LoginService) Challenge(ctx context.Context, handle string) (*LoginChallenge, error) {
	if handle == "" {
		return nil, apperrors.Validation("handle é obrigatório")
	}
	c, err := pqcrypto.RandomBytes(ChallengeSize)
	if err != nil {
		return nil, apperrors.Internal("falha ao gerar desafio", err)
	}
	nonce, err := pqcrypto.RandomBytes(models.NonceSize)
	if err != nil {
		return nil, apperrors.Internal("falha ao gerar nonce", err)
	}

	s.challenges.Put(loginKey(nonce), pendingLogin{handle: handle, challenge: c}, s.ttl)
	return &LoginChallenge{Challenge: c, Nonce: nonce}, nil
}

func loginKey(nonce []byte) string {
	return "login:chal:" + pqcrypto.ToBase64URL(nonce)
}

// Submit consome o desafio (mesmo em caso de sucesso) e verifica a assinatura.
// Handle desconhecido e assinatura errada são indistinguíveis e sofrem o mesmo atraso.
func (s *LoginService) Submit(ctx context.Context, nonce, signature []byte) (*Session, error) {
	pending, ok := s.challenges.Take(loginKey(nonce))
	if !ok {
		return nil, apperrors.ErrExpired
	}

	user, err := s.store.GetUserByHandle(ctx, pending.handle)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("falha ao buscar usuário", err)
	}
	verified := err == nil && s.verifier.Verify(user.SigningPublicKey, pending.challenge, signature)
	if !verified {
		s.sleep(ctx, s.failureDelay)
		s.log.Info().Str("handle", pending.handle).Msg("login recusado")
		return nil, apperrors.ErrUnauthorized
	}

	token, err := s.tokenService.NewToken(user.ID, user.Handle)
	if err != nil {
		return nil, apperrors.Internal("falha ao gerar token", err)
	}

	s.log.Info().Str("handle", user.Handle).Msg("login efetuado")
	return &Session{User: user, Token: token}, nil
}
