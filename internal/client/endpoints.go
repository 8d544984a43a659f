package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"pqchat-backend/internal/wire"
)

// === Registro e login ===

func (c *Client) RegisterInit(ctx context.Context, req wire.RegisterInitRequest) (*wire.RegisterInitResponse, error) {
	var out wire.RegisterInitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/register/init", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RegisterVerify(ctx context.Context, req wire.RegisterVerifyRequest) (*wire.RegisterVerifyResponse, error) {
	var out wire.RegisterVerifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/register/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LoginChallenge(ctx context.Context, handle string) (*wire.LoginChallengeResponse, error) {
	var out wire.LoginChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/login/challenge", wire.LoginChallengeRequest{Handle: handle}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginSubmit guarda o token devolvido para as próximas chamadas
func (c *Client) LoginSubmit(ctx context.Context, req wire.LoginSubmitRequest) (*wire.LoginSubmitResponse, error) {
	var out wire.LoginSubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/login/submit", req, &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

func (c *Client) Session(ctx context.Context) (*wire.SessionResponse, error) {
	var out wire.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserKey busca as chaves públicas publicadas de um handle
func (c *Client) UserKey(ctx context.Context, handle string) (*wire.UserKey, error) {
	var out wire.UserKey
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(handle)+"/key", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === Contatos ===

func (c *Client) CreateContactRequest(ctx context.Context, req wire.ContactRequestCreate) (*wire.ContactRequestCreated, error) {
	var out wire.ContactRequestCreated
	if err := c.do(ctx, http.MethodPost, "/v1/contacts/requests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PendingRequests(ctx context.Context) ([]wire.PendingRequest, error) {
	var out []wire.PendingRequest
	if err := c.do(ctx, http.MethodGet, "/v1/contacts/requests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RespondContactRequest(ctx context.Context, id string, req wire.ContactRespond) (*wire.ContactRespondResponse, error) {
	var out wire.ContactRespondResponse
	if err := c.do(ctx, http.MethodPost, "/v1/contacts/requests/"+url.PathEscape(id)+"/respond", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Contacts(ctx context.Context) ([]wire.UserKey, error) {
	var out []wire.UserKey
	if err := c.do(ctx, http.MethodGet, "/v1/contacts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Contact(ctx context.Context, handle string) (*wire.ContactShowResponse, error) {
	var out wire.ContactShowResponse
	if err := c.do(ctx, http.MethodGet, "/v1/contacts/"+url.PathEscape(handle), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === Mensagens e conversas ===

func (c *Client) SendMessage(ctx context.Context, req wire.MessageCreate) (*wire.MessageCreated, error) {
	var out wire.MessageCreated
	if err := c.do(ctx, http.MethodPost, "/v1/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mailbox lista a caixa "inbox" ou "outbox"
func (c *Client) Mailbox(ctx context.Context, box string) ([]wire.Message, error) {
	var out []wire.Message
	if err := c.do(ctx, http.MethodGet, "/v1/messages?box="+url.QueryEscape(box), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OpenChat(ctx context.Context, handle string) (*wire.ChatOpenResponse, error) {
	var out wire.ChatOpenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chats/open", wire.ChatOpenRequest{Handle: handle}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summary devolve as linhas {peer, unread, last_t, conversation_id}
func (c *Client) Summary(ctx context.Context) ([]SummaryRow, error) {
	var out []SummaryRow
	if err := c.do(ctx, http.MethodGet, "/v1/chats/summary", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SummaryRow é uma linha do resumo de não lidas
type SummaryRow struct {
	ConversationID string `json:"conversation_id"`
	Peer           string `json:"peer"`
	Unread         int    `json:"unread"`
	LastT          int64  `json:"last_t"`
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	var out wire.ReadResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chats/"+url.PathEscape(conversationID)+"/read", nil, &out); err != nil {
		return 0, err
	}
	return out.LastReadMessageID, nil
}

// MessagesSince busca as mensagens estritamente após o cursor (afterT, afterID)
func (c *Client) MessagesSince(ctx context.Context, conversationID string, afterT, afterID int64, limit int) ([]wire.Message, error) {
	q := url.Values{}
	q.Set("after_t", strconv.FormatInt(afterT, 10))
	q.Set("after_id", strconv.FormatInt(afterID, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out []wire.Message
	path := "/v1/chats/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LastRead(ctx context.Context, conversationID string) (*wire.LastReadResponse, error) {
	var out wire.LastReadResponse
	if err := c.do(ctx, http.MethodGet, "/v1/chats/"+url.PathEscape(conversationID)+"/last_read", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
