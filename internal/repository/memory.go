package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"pqchat-backend/internal/models"

	"github.com/google/uuid"
)

type cursorKey struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

type contactKey struct {
	userID        uuid.UUID
	contactUserID uuid.UUID
}

// InMemoryStore é uma implementação em-memória da interface Store
type InMemoryStore struct {
	mu sync.RWMutex

	usersByID     map[uuid.UUID]*models.User
	usersByHandle map[string]*models.User

	nonces map[string]time.Time

	requests map[uuid.UUID]*models.ContactRequest
	contacts map[contactKey]*models.Contact

	conversationsByID  map[uuid.UUID]*models.Conversation
	conversationsByKey map[string]*models.Conversation

	messages      []*models.Message // em ordem de ID
	messagesByID  map[int64]*models.Message
	nextMessageID int64

	cursors map[cursorKey]*models.ReadCursor
}

// NewInMemoryStore cria uma nova instância do store em memória
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		usersByID:          make(map[uuid.UUID]*models.User),
		usersByHandle:      make(map[string]*models.User),
		nonces:             make(map[string]time.Time),
		requests:           make(map[uuid.UUID]*models.ContactRequest),
		contacts:           make(map[contactKey]*models.Contact),
		conversationsByID:  make(map[uuid.UUID]*models.Conversation),
		conversationsByKey: make(map[string]*models.Conversation),
		messagesByID:       make(map[int64]*models.Message),
		cursors:            make(map[cursorKey]*models.ReadCursor),
	}
}

// --- IdentityStore ---

func (s *InMemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByHandle[user.Handle]; exists {
		return ErrHandleTaken
	}

	s.usersByID[user.ID] = user
	s.usersByHandle[user.Handle] = user
	return nil
}

func (s *InMemoryStore) GetUserByHandle(ctx context.Context, handle string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByHandle[handle]
	if !exists {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *InMemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, ErrNotFound
	}
	return user, nil
}

// --- NonceStore ---

func (s *InMemoryStore) ConsumeNonce(ctx context.Context, signerPublicKey, nonce []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(signerPublicKey) + "\x00" + string(nonce)
	if _, seen := s.nonces[k]; seen {
		return false, nil
	}
	s.nonces[k] = time.Now()
	return true, nil
}

// --- ContactStore ---

func (s *InMemoryStore) CreateContactRequest(ctx context.Context, req *models.ContactRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return ErrDuplicate
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetContactRequest(ctx context.Context, id uuid.UUID) (*models.ContactRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *InMemoryStore) ListPendingRequestsFor(ctx context.Context, userID uuid.UUID, handle string) ([]*models.ContactRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.ContactRequest{}
	for _, req := range s.requests {
		if req.Status != models.ContactRequestPending {
			continue
		}
		byID := req.RecipientID != nil && *req.RecipientID == userID
		if byID || req.RecipientHandle == handle {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ResolveContactRequest(ctx context.Context, id, recipientID uuid.UUID, status models.ContactRequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[id]
	if !exists {
		return ErrNotFound
	}
	if req.Status != models.ContactRequestPending {
		return ErrNotPending
	}

	req.Status = status
	rid := recipientID
	req.RecipientID = &rid

	if status == models.ContactRequestAccepted {
		now := time.Now()
		for _, k := range []contactKey{{req.RequesterID, recipientID}, {recipientID, req.RequesterID}} {
			if _, exists := s.contacts[k]; !exists {
				s.contacts[k] = &models.Contact{UserID: k.userID, ContactUserID: k.contactUserID, CreatedAt: now}
			}
		}
	}
	return nil
}

func (s *InMemoryStore) IsContact(ctx context.Context, userID, contactUserID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.contacts[contactKey{userID, contactUserID}]
	return exists, nil
}

func (s *InMemoryStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []*models.User{}
	for k := range s.contacts {
		if k.userID != userID {
			continue
		}
		if u, ok := s.usersByID[k.contactUserID]; ok {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Handle < users[j].Handle })
	return users, nil
}

// --- ConversationStore ---

func (s *InMemoryStore) GetOrCreateConversation(ctx context.Context, key string, a, b uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, exists := s.conversationsByKey[key]; exists {
		return c, nil
	}
	c := &models.Conversation{ID: uuid.New(), Key: key, AID: a, BID: b, CreatedAt: time.Now()}
	s.conversationsByKey[key] = c
	s.conversationsByID[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.conversationsByID[id]
	if !exists {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) ListConversationsFor(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Conversation{}
	for _, c := range s.conversationsByID {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- MessageStore ---

func (s *InMemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID++
	msg.ID = s.nextMessageID
	cp := *msg
	s.messages = append(s.messages, &cp)
	s.messagesByID[cp.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.messagesByID[id]
	if !exists {
		return nil, ErrNotFound
	}
	return m, nil
}

// filter devolve as mensagens que passam em keep, ordenadas por (t, id)
func (s *InMemoryStore) filter(keep func(*models.Message) bool) []*models.Message {
	out := []*models.Message{}
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TMs != out[j].TMs {
			return out[i].TMs < out[j].TMs
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *InMemoryStore) MessagesSince(ctx context.Context, conversationID uuid.UUID, afterT, afterID int64, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(m *models.Message) bool {
		return m.ConversationID == conversationID && m.After(afterT, afterID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(m *models.Message) bool { return m.ConversationID == conversationID })
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *InMemoryStore) LatestMessage(ctx context.Context, conversationID, recipientID uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(func(m *models.Message) bool {
		return m.ConversationID == conversationID && (recipientID == uuid.Nil || m.RecipientID == recipientID)
	})
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[len(out)-1], nil
}

func (s *InMemoryStore) CountInboundAfter(ctx context.Context, conversationID, recipientID uuid.UUID, afterT, afterID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.RecipientID == recipientID && m.After(afterT, afterID) {
			n++
		}
	}
	return n, nil
}

// recentFirst ordena por (t, id) decrescente
func recentFirst(msgs []*models.Message) []*models.Message {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

func (s *InMemoryStore) ListInbox(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return recentFirst(s.filter(func(m *models.Message) bool { return m.RecipientID == userID })), nil
}

func (s *InMemoryStore) ListOutbox(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return recentFirst(s.filter(func(m *models.Message) bool { return m.SenderID == userID })), nil
}

// --- CursorStore ---

func (s *InMemoryStore) EnsureReadCursor(ctx context.Context, conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := cursorKey{conversationID, userID}
	if _, exists := s.cursors[k]; !exists {
		s.cursors[k] = &models.ReadCursor{ConversationID: conversationID, UserID: userID, UpdatedAt: time.Now()}
	}
	return nil
}

func (s *InMemoryStore) UpsertReadCursor(ctx context.Context, cursor *models.ReadCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cursor
	s.cursors[cursorKey{cursor.ConversationID, cursor.UserID}] = &cp
	return nil
}

func (s *InMemoryStore) GetReadCursor(ctx context.Context, conversationID, userID uuid.UUID) (*models.ReadCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.cursors[cursorKey{conversationID, userID}]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}
