package repository

import (
	"context"

	"pqchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNonceSeen é devolvido quando o par (chave, nonce) já foi gravado
var ErrNonceSeen = errors.New("nonce já consumido")

const uniqueViolation = "23505"

// PostgresStore é a implementação da interface Store para o PostgreSQL
type PostgresStore struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPostgresStore cria uma nova instância do PostgresStore e pool de conexões
func NewPostgresStore(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "não foi possível criar pool de conexão")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "não foi possível pingar o banco de dados")
	}

	log.Info().Msg("Pool de conexão com PostgreSQL estabelecido.")
	return &PostgresStore{db: pool, log: log}, nil
}

// Close fecha o pool de conexões
func (s *PostgresStore) Close() {
	s.db.Close()
}

// RunMigrations executa o script SQL de migração
func (s *PostgresStore) RunMigrations(ctx context.Context, migrationSQL string) error {
	if _, err := s.db.Exec(ctx, migrationSQL); err != nil {
		return errors.Wrap(err, "falha ao executar migração")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- IdentityStore ---

const userColumns = `id, handle, signing_pk, kem_pk, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Handle, &user.SigningPublicKey, &user.KEMPublicKey, &user.CreatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	sql := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, sql, user.ID, user.Handle, user.SigningPublicKey, user.KEMPublicKey, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHandleTaken
		}
		return errors.Wrap(err, "falha ao criar usuário")
	}
	return nil
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "falha ao buscar usuário")
	}
	return user, nil
}

func (s *PostgresStore) GetUserByHandle(ctx context.Context, handle string) (*models.User, error) {
	return s.getUser(ctx, "handle = $1", handle)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

// --- NonceStore ---

func (s *PostgresStore) insertNonce(ctx context.Context, signerPublicKey, nonce []byte) error {
	_, err := s.db.Exec(ctx, `INSERT INTO used_nonces (signer_pk, nonce) VALUES ($1, $2)`, signerPublicKey, nonce)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNonceSeen
		}
		return errors.Wrap(err, "falha ao registrar nonce")
	}
	return nil
}

func (s *PostgresStore) ConsumeNonce(ctx context.Context, signerPublicKey, nonce []byte) (bool, error) {
	err := s.insertNonce(ctx, signerPublicKey, nonce)
	if errors.Is(err, ErrNonceSeen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- ContactStore ---

const requestColumns = `id, requester_id, recipient_handle, recipient_id, note, status, t_ms, nonce, sig, requester_pk, created_at`

func scanRequest(row pgx.Row) (*models.ContactRequest, error) {
	req := &models.ContactRequest{}
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.RecipientHandle,
		&req.RecipientID,
		&req.Note,
		&req.Status,
		&req.TMs,
		&req.Nonce,
		&req.Signature,
		&req.RequesterPubKey,
		&req.CreatedAt,
	)
	return req, err
}

func (s *PostgresStore) CreateContactRequest(ctx context.Context, req *models.ContactRequest) error {
	sql := `INSERT INTO contact_requests (` + requestColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.Exec(ctx, sql,
		req.ID,
		req.RequesterID,
		req.RecipientHandle,
		req.RecipientID,
		req.Note,
		req.Status,
		req.TMs,
		req.Nonce,
		req.Signature,
		req.RequesterPubKey,
		req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "falha ao criar pedido de contato")
	}
	return nil
}

func (s *PostgresStore) GetContactRequest(ctx context.Context, id uuid.UUID) (*models.ContactRequest, error) {
	req, err := scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM contact_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "falha ao buscar pedido de contato")
	}
	return req, nil
}

func (s *PostgresStore) ListPendingRequestsFor(ctx context.Context, userID uuid.UUID, handle string) ([]*models.ContactRequest, error) {
	sql := `SELECT ` + requestColumns + ` FROM contact_requests
        WHERE status = 'pending' AND (recipient_id = $1 OR recipient_handle = $2)
        ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, sql, userID, handle)
	if err != nil {
		return nil, errors.Wrap(err, "falha ao buscar pedidos pendentes")
	}
	defer rows.Close()

	// Inicializa como slice vazio para consistência de JSON
	reqs := []*models.ContactRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "falha ao escanear pedido de contato")
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "erro ao iterar sobre os pedidos")
	}
	return reqs, nil
}

func (s *PostgresStore) ResolveContactRequest(ctx context.Context, id, recipientID uuid.UUID, status models.ContactRequestStatus) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "falha ao abrir transação")
	}
	defer tx.Rollback(ctx)

	var requesterID uuid.UUID
	err = tx.QueryRow(ctx, `
        UPDATE contact_requests SET status = $2, recipient_id = $3
        WHERE id = $1 AND status = 'pending'
        RETURNING requester_id`, id, status, recipientID).Scan(&requesterID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrap(err, "falha ao atualizar pedido de contato")
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contact_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return errors.Wrap(err, "falha ao buscar pedido de contato")
		}
		if !exists {
			return ErrNotFound
		}
		return ErrNotPending
	}

	if status == models.ContactRequestAccepted {
		edge := `INSERT INTO contacts (user_id, contact_user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, edge, requesterID, recipientID); err != nil {
			return errors.Wrap(err, "falha ao criar contato")
		}
		if _, err := tx.Exec(ctx, edge, recipientID, requesterID); err != nil {
			return errors.Wrap(err, "falha ao criar contato")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "falha ao confirmar transação")
}

func (s *PostgresStore) IsContact(ctx context.Context, userID, contactUserID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contacts WHERE user_id = $1 AND contact_user_id = $2)`,
		userID, contactUserID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "falha ao verificar contato")
	}
	return exists, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	sql := `SELECT u.id, u.handle, u.signing_pk, u.kem_pk, u.created_at
        FROM contacts c JOIN users u ON u.id = c.contact_user_id
        WHERE c.user_id = $1
        ORDER BY u.handle`

	rows, err := s.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, errors.Wrap(err, "falha ao buscar contatos")
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "falha ao escanear contato")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "erro ao iterar sobre os contatos")
	}
	return users, nil
}

// --- ConversationStore ---

const conversationColumns = `id, key, a_id, b_id, created_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(&c.ID, &c.Key, &c.AID, &c.BID, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, key string, a, b uuid.UUID) (*models.Conversation, error) {
	// ON CONFLICT garante uma única linha por par mesmo com aberturas concorrentes
	_, err := s.db.Exec(ctx,
		`INSERT INTO conversations (id, key, a_id, b_id) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO NOTHING`,
		uuid.New(), key, a, b,
	)
	if err != nil {
		return nil, errors.Wrap(err, "falha ao criar conversa")
	}

	c, err := scanConversation(s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE key = $1`, key))
	if err != nil {
		return nil, errors.Wrap(err, "falha ao buscar conversa")
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "falha ao buscar conversa")
	}
	return c, nil
}

func (s *PostgresStore) ListConversationsFor(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE a_id = $1 OR b_id = $1`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "falha ao buscar conversas")
	}
	defer rows.Close()

	convs := []*models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "falha ao escanear conversa")
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "erro ao iterar sobre as conversas")
	}
	return convs, nil
}

// --- MessageStore ---

const messageColumns = `id, sender_id, recipient_id, conversation_id, t_ms, nonce, kem_ct, aead_ct, sig, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.RecipientID,
		&m.ConversationID,
		&m.TMs,
		&m.Nonce,
		&m.KEMCiphertext,
		&m.AEADCiphertext,
		&m.Signature,
		&m.CreatedAt,
	)
	return m, err
}

func (s *PostgresStore) queryMessages(ctx context.Context, sql string, args ...any) ([]*models.Message, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "falha ao buscar mensagens")
	}
	defer rows.Close()

	msgs := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "falha ao escanear mensagem")
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "erro ao iterar sobre as mensagens")
	}
	return msgs, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	sql := `INSERT INTO messages (sender_id, recipient_id, conversation_id, t_ms, nonce, kem_ct, aead_ct, sig, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id`

	err := s.db.QueryRow(ctx, sql,
		msg.SenderID,
		msg.RecipientID,
		msg.ConversationID,
		msg.TMs,
		msg.Nonce,
		msg.KEMCiphertext,
		msg.AEADCiphertext,
		msg.Signature,
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return errors.Wrap(err, "falha ao criar mensagem")
	}
	return nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "falha ao buscar mensagem")
	}
	return m, nil
}

func (s *PostgresStore) MessagesSince(ctx context.Context, conversationID uuid.UUID, afterT, afterID int64, limit int) ([]*models.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id = $1 AND (t_ms > $2 OR (t_ms = $2 AND id > $3))
        ORDER BY t_ms ASC, id ASC
        LIMIT $4`, conversationID, afterT, afterID, limit)
}

func (s *PostgresStore) LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*models.Message, error) {
	return s.queryMessages(ctx, `SELECT * FROM (
            SELECT `+messageColumns+` FROM messages
            WHERE conversation_id = $1
            ORDER BY t_ms DESC, id DESC
            LIMIT $2
        ) recent ORDER BY t_ms ASC, id ASC`, conversationID, n)
}

func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID, recipientID uuid.UUID) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id = $1 AND ($2::uuid = '00000000-0000-0000-0000-000000000000' OR recipient_id = $2)
        ORDER BY t_ms DESC, id DESC
        LIMIT 1`, conversationID, recipientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "falha ao buscar última mensagem")
	}
	return m, nil
}

func (s *PostgresStore) CountInboundAfter(ctx context.Context, conversationID, recipientID uuid.UUID, afterT, afterID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM messages
        WHERE conversation_id = $1 AND recipient_id = $2 AND (t_ms > $3 OR (t_ms = $3 AND id > $4))`,
		conversationID, recipientID, afterT, afterID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "falha ao contar mensagens não lidas")
	}
	return n, nil
}

func (s *PostgresStore) ListInbox(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE recipient_id = $1 ORDER BY t_ms DESC, id DESC`, userID)
}

func (s *PostgresStore) ListOutbox(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
        WHERE sender_id = $1 ORDER BY t_ms DESC, id DESC`, userID)
}

// --- CursorStore ---

func (s *PostgresStore) EnsureReadCursor(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_reads (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		conversationID, userID,
	)
	return errors.Wrap(err, "falha ao criar cursor de leitura")
}

func (s *PostgresStore) UpsertReadCursor(ctx context.Context, cursor *models.ReadCursor) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO chat_reads (conversation_id, user_id, last_read_message_id, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (conversation_id, user_id)
        DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id, updated_at = EXCLUDED.updated_at`,
		cursor.ConversationID, cursor.UserID, cursor.LastReadMessageID, cursor.UpdatedAt,
	)
	return errors.Wrap(err, "falha ao gravar cursor de leitura")
}

func (s *PostgresStore) GetReadCursor(ctx context.Context, conversationID, userID uuid.UUID) (*models.ReadCursor, error) {
	c := &models.ReadCursor{}
	err := s.db.QueryRow(ctx, `
        SELECT conversation_id, user_id, last_read_message_id, updated_at
        FROM chat_reads WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&c.ConversationID, &c.UserID, &c.LastReadMessageID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "falha ao buscar cursor de leitura")
	}
	return c, nil
}
