package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "pqchat:session:v1"

// TokenService emite e valida os tokens de sessão criados após o login
type TokenService struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenService cria um novo serviço de token. A chave HMAC é derivada
// do segredo configurado via HKDF-SHA256.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("segredo JWT não pode ser vazio")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("validade do token deve ser positiva")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("falha ao derivar chave de sessão: %w", err)
	}

	return &TokenService{
		jwtSecret: key,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// NewToken cria um novo token JWT para um usuário
func (s *TokenService) NewToken(userID uuid.UUID, handle string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":    userID.String(), // 'subject' (o ID do usuário)
		"handle": handle,
		"iat":    now.Unix(),
		"exp":    now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifica a validade de um token string
func (s *TokenService) ValidateToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifica o método de assinatura
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("falha ao parsear token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token inválido")
	}

	return token, nil
}

// GetUserIDFromToken extrai o 'sub' (UserID) de um token validado
func (s *TokenService) GetUserIDFromToken(token *jwt.Token) (uuid.UUID, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("não foi possível ler claims do token")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("não foi possível obter 'sub' do token: %w", err)
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("'sub' do token não é um UUID válido: %w", err)
	}

	return userID, nil
}
