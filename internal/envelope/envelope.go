// Package envelope implementa o envelope assinado compartilhado por pedidos
// de contato e mensagens: empacotamento canônico, janela de validade,
// verificação de assinatura e consumo de nonce.
package envelope

import (
	"context"
	"encoding/binary"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/models"
	"pqchat-backend/internal/pqcrypto"
)

// DefaultWindow é a tolerância máxima entre o t_ms assinado e o relógio do servidor
const DefaultWindow = 120 * time.Second

// Pack monta BE64(t_ms) || nonce || campos, na ordem recebida
func Pack(tMs int64, nonce []byte, fields ...[]byte) []byte {
	size := 8 + len(nonce)
	for _, f := range fields {
		size += len(f)
	}
	out := make([]byte, 8, size)
	binary.BigEndian.PutUint64(out, uint64(tMs))
	out = append(out, nonce...)
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

// NonceLedger registra pares (chave do signatário, nonce). Consume devolve
// false se o par já existia; a inserção é atômica.
type NonceLedger interface {
	ConsumeNonce(ctx context.Context, signerPublicKey, nonce []byte) (bool, error)
}

// Gate aplica as três verificações na ordem fixa:
// validade -> assinatura -> consumo do nonce.
type Gate struct {
	verifier pqcrypto.Verifier
	ledger   NonceLedger
	window   time.Duration
	now      func() time.Time
}

// Option configura o Gate
type Option func(*Gate)

// WithWindow troca a janela de validade
func WithWindow(d time.Duration) Option {
	return func(g *Gate) { g.window = d }
}

// WithClock troca o relógio (usado em testes)
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate cria um Gate
func NewGate(verifier pqcrypto.Verifier, ledger NonceLedger, opts ...Option) *Gate {
	g := &Gate{
		verifier: verifier,
		ledger:   ledger,
		window:   DefaultWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fresh diz se t_ms está dentro da janela
func (g *Gate) Fresh(tMs int64) bool {
	delta := g.now().UnixMilli() - tMs
	if delta < 0 {
		delta = -delta
	}
	return delta <= g.window.Milliseconds()
}

// Check valida um envelope assinado por signerPublicKey. O nonce só é
// consumido depois que a assinatura confere.
func (g *Gate) Check(ctx context.Context, signerPublicKey []byte, tMs int64, nonce, signature []byte, fields ...[]byte) error {
	if len(nonce) != models.NonceSize {
		return apperrors.Validation("nonce deve ter 16 bytes")
	}
	if !g.Fresh(tMs) {
		return apperrors.ErrStale
	}
	if !g.verifier.Verify(signerPublicKey, Pack(tMs, nonce, fields...), signature) {
		return apperrors.ErrBadSignature
	}
	fresh, err := g.ledger.ConsumeNonce(ctx, signerPublicKey, nonce)
	if err != nil {
		return apperrors.Internal("falha ao registrar nonce", err)
	}
	if !fresh {
		return apperrors.ErrReplay
	}
	return nil
}
