// Package client é o cliente HTTP tipado da API e o lado cliente dos
// protocolos de registro, login, contatos e mensagens.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pqchat-backend/internal/apperrors"
	"pqchat-backend/internal/wire"

	"github.com/gorilla/websocket"
)

// Client é o cliente HTTP da API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configura o cliente
type Option func(*Client)

// WithHTTPClient troca o http.Client usado nas requisições
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken define o token de sessão já obtido
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New cria um cliente para o servidor em baseURL (ex: http://localhost:8080)
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("URL do servidor é obrigatória")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken troca o token de sessão
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token devolve o token de sessão atual
func (c *Client) Token() string {
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("falha ao serializar requisição: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("falha ao criar requisição: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// sem retentativas: reenviar um envelope assinado seria um replay
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requisição falhou: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("falha ao decodificar resposta: %w", err)
		}
	}
	return nil
}

// parseErrorResponse reconstrói o erro etiquetado a partir do corpo padrão
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp wire.ErrorBody
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return apperrors.FromStatus(resp.StatusCode, apperrors.Kind(errResp.Error.Kind), errResp.Error.Message)
	}
	return apperrors.FromStatus(resp.StatusCode, "", strings.TrimSpace(string(body)))
}

// Live assina o canal ao vivo da conversa. O canal devolvido fecha quando
// ctx termina ou a conexão cai; cada item é só um aviso.
func (c *Client) Live(ctx context.Context, conversationID string) (<-chan wire.Message, error) {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/chats/" + conversationID + "/live"
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, parseErrorResponse(resp)
		}
		return nil, fmt.Errorf("falha ao conectar no canal ao vivo: %w", err)
	}

	out := make(chan wire.Message, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var m wire.Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
