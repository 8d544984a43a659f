// Package chatsync mantém o log local de cada conversa em dia com o
// servidor. A fonte de verdade é sempre a busca por cursor; os avisos do
// canal ao vivo só disparam uma nova busca.
package chatsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pqchat-backend/internal/client"
	"pqchat-backend/internal/locallog"
	"pqchat-backend/internal/pqcrypto"
	"pqchat-backend/internal/wire"

	"github.com/rs/zerolog"
)

const (
	DefaultPageSize  = 200
	DefaultReadDelay = 500 * time.Millisecond
	// DefaultReadMaxWait limita o adiamento da marcação durante uma rajada
	DefaultReadMaxWait = 3 * time.Second
)

// API é o subconjunto do cliente HTTP usado na sincronização
type API interface {
	OpenChat(ctx context.Context, handle string) (*wire.ChatOpenResponse, error)
	MessagesSince(ctx context.Context, conversationID string, afterT, afterID int64, limit int) ([]wire.Message, error)
	UserKey(ctx context.Context, handle string) (*wire.UserKey, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	LastRead(ctx context.Context, conversationID string) (*wire.LastReadResponse, error)
	Live(ctx context.Context, conversationID string) (<-chan wire.Message, error)
}

// Option configura o Syncer
type Option func(*Syncer)

// WithPageSize define o tamanho da página, limitado ao teto do servidor
func WithPageSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.pageSize = min(n, wire.MaxFetchLimit)
		}
	}
}

// WithReadDelay define a janela em que marcações de leitura são agrupadas
func WithReadDelay(d time.Duration) Option {
	return func(s *Syncer) {
		s.readDelay = d
	}
}

// WithReadMaxWait define quanto uma marcação pode ser adiada por novas chamadas
func WithReadMaxWait(d time.Duration) Option {
	return func(s *Syncer) {
		s.readMaxWait = d
	}
}

type pendingRead struct {
	timer    *time.Timer
	deadline time.Time
}

// Syncer sincroniza as conversas do dono da identidade
type Syncer struct {
	api       API
	identity  *client.Identity
	store     *locallog.Log
	log       zerolog.Logger
	pageSize    int
	readDelay   time.Duration
	readMaxWait time.Duration

	mu            sync.Mutex
	conversations map[string]string // peer -> conversation id
	keys          map[string][]byte // handle -> chave de assinatura
	readTimers    map[string]*pendingRead
}

func New(api API, identity *client.Identity, store *locallog.Log, log zerolog.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		api:           api,
		identity:      identity,
		store:         store,
		log:           log,
		pageSize:      DefaultPageSize,
		readDelay:     DefaultReadDelay,
		readMaxWait:   DefaultReadMaxWait,
		conversations: make(map[string]string),
		keys:          map[string][]byte{identity.Handle: identity.Keys.SigningPublicKey},
		readTimers:    make(map[string]*pendingRead),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) owner() string {
	return s.identity.Handle
}

// conversation resolve (e guarda) o id da conversa com peer, abrindo-a no servidor
func (s *Syncer) conversation(ctx context.Context, peer string) (string, error) {
	s.mu.Lock()
	id, ok := s.conversations[peer]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	open, err := s.api.OpenChat(ctx, peer)
	if err != nil {
		return "", err
	}
	ps, err := pqcrypto.FromBase64URL(open.Peer.SigningPublicKey)
	if err != nil {
		return "", fmt.Errorf("chave publicada de %s inválida: %w", peer, err)
	}

	id = open.ConversationID.String()
	s.mu.Lock()
	s.conversations[peer] = id
	s.keys[peer] = ps
	s.mu.Unlock()
	return id, nil
}

// signingKey busca a chave do remetente no cache ou no servidor
func (s *Syncer) signingKey(ctx context.Context, handle string) ([]byte, error) {
	s.mu.Lock()
	key, ok := s.keys[handle]
	s.mu.Unlock()
	if ok {
		return key, nil
	}

	uk, err := s.api.UserKey(ctx, handle)
	if err != nil {
		return nil, err
	}
	key, err = pqcrypto.FromBase64URL(uk.SigningPublicKey)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys[handle] = key
	s.mu.Unlock()
	return key, nil
}

// EnsureHistory baixa o histórico completo se o log local da conversa
// estiver vazio. Devolve quantas entradas foram gravadas.
func (s *Syncer) EnsureHistory(ctx context.Context, peer string) (int, error) {
	n, err := s.store.Len(s.owner(), peer)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	return s.pull(ctx, peer, 0, 0)
}

// SyncNew busca tudo após o maior cursor local e grava no log
func (s *Syncer) SyncNew(ctx context.Context, peer string) (int, error) {
	afterT, afterID, err := s.store.Max(s.owner(), peer)
	if err != nil {
		return 0, err
	}
	return s.pull(ctx, peer, afterT, afterID)
}

func (s *Syncer) pull(ctx context.Context, peer string, afterT, afterID int64) (int, error) {
	convID, err := s.conversation(ctx, peer)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		page, err := s.api.MessagesSince(ctx, convID, afterT, afterID, s.pageSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}

		entries := make([]locallog.Entry, 0, len(page))
		for _, m := range page {
			entries = append(entries, s.process(ctx, m))
		}
		n, err := s.store.Append(s.owner(), peer, entries...)
		total += n
		if err != nil {
			return total, err
		}

		last := page[len(page)-1]
		afterT, afterID = last.T, last.ID
		if len(page) < s.pageSize {
			return total, nil
		}
	}
}

// process decifra e verifica uma mensagem. Falhas viram marcadores na entrada.
func (s *Syncer) process(ctx context.Context, m wire.Message) locallog.Entry {
	e := locallog.Entry{
		ID:       m.ID,
		TMs:      m.T,
		From:     m.From,
		To:       m.To,
		Outgoing: m.From == s.owner(),
	}

	key, err := s.signingKey(ctx, m.From)
	if err != nil {
		s.log.Warn().Err(err).Str("from", m.From).Int64("id", m.ID).Msg("chave do remetente indisponível")
	} else {
		e.Verified = client.VerifyMessage(key, m)
	}
	if !e.Verified {
		s.log.Warn().Str("from", m.From).Int64("id", m.ID).Msg("assinatura da mensagem não confere")
	}

	// a cópia enviada foi cifrada para o destinatário
	if e.Outgoing {
		return e
	}
	text, err := s.identity.Open(m)
	if err != nil {
		e.DecryptFailed = true
		return e
	}
	e.Text = text
	return e
}

// Follow mantém a conversa em dia até ctx terminar ou o canal cair.
// O histórico é garantido antes da assinatura; cada aviso dispara SyncNew
// e onUpdate recebe quantas entradas novas entraram no log.
func (s *Syncer) Follow(ctx context.Context, peer string, onUpdate func(appended int)) error {
	if _, err := s.EnsureHistory(ctx, peer); err != nil {
		return err
	}
	convID, err := s.conversation(ctx, peer)
	if err != nil {
		return err
	}

	events, err := s.api.Live(ctx, convID)
	if err != nil {
		return err
	}

	// cobre o que chegou entre o histórico e a assinatura
	s.catchUp(ctx, peer, onUpdate)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			s.catchUp(ctx, peer, onUpdate)
		}
	}
}

func (s *Syncer) catchUp(ctx context.Context, peer string, onUpdate func(int)) {
	n, err := s.SyncNew(ctx, peer)
	if err != nil {
		s.log.Warn().Err(err).Str("peer", peer).Msg("falha ao sincronizar")
	}
	if n == 0 {
		return
	}
	if onUpdate != nil {
		onUpdate(n)
	}
	s.ScheduleMarkRead(peer)
}

// Unread conta as entradas finais do log local a partir da primeira mensagem
// recebida depois do cursor de leitura do servidor. É o valor a passar como
// appended ao abrir a conversa.
func (s *Syncer) Unread(ctx context.Context, peer string) (int, error) {
	convID, err := s.conversation(ctx, peer)
	if err != nil {
		return 0, err
	}
	read, err := s.api.LastRead(ctx, convID)
	if err != nil {
		return 0, err
	}
	entries, err := s.store.Entries(s.owner(), peer)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if e.Outgoing {
			continue
		}
		if e.TMs > read.LastReadT || (e.TMs == read.LastReadT && e.ID > read.LastReadMessageID) {
			return len(entries) - i, nil
		}
	}
	return 0, nil
}

// ScheduleMarkRead agenda a marcação de leitura; chamadas dentro da janela
// são agrupadas numa só, que nunca passa de readMaxWait após a primeira
func (s *Syncer) ScheduleMarkRead(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.readTimers[peer]; ok && p.timer.Stop() {
		p.timer.Reset(s.readWait(p.deadline))
		return
	}
	p := &pendingRead{deadline: time.Now().Add(s.readMaxWait)}
	p.timer = time.AfterFunc(s.readDelay, func() {
		s.mu.Lock()
		if s.readTimers[peer] == p {
			delete(s.readTimers, peer)
		}
		s.mu.Unlock()
		s.markRead(context.Background(), peer)
	})
	s.readTimers[peer] = p
}

func (s *Syncer) readWait(deadline time.Time) time.Duration {
	d := min(s.readDelay, time.Until(deadline))
	return max(d, 0)
}

// Flush envia agora as marcações de leitura pendentes
func (s *Syncer) Flush(ctx context.Context) {
	s.mu.Lock()
	var pending []string
	for peer, p := range s.readTimers {
		if p.timer.Stop() {
			pending = append(pending, peer)
		}
		delete(s.readTimers, peer)
	}
	s.mu.Unlock()

	for _, peer := range pending {
		s.markRead(ctx, peer)
	}
}

func (s *Syncer) markRead(ctx context.Context, peer string) {
	convID, err := s.conversation(ctx, peer)
	if err != nil {
		s.log.Warn().Err(err).Str("peer", peer).Msg("falha ao marcar leitura")
		return
	}
	if _, err := s.api.MarkRead(ctx, convID); err != nil {
		s.log.Warn().Err(err).Str("peer", peer).Msg("falha ao marcar leitura")
	}
}
