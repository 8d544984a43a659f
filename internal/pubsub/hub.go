// Package pubsub é o canal de push em tempo real. A entrega é best-effort:
// um assinante lento perde eventos e se recupera pela sincronização por cursor.
package pubsub

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Broker publica e assina tópicos
type Broker interface {
	Publish(topic string, payload []byte)
	Subscribe(topic string) (<-chan []byte, func())
}

// ChatTopic é o tópico de uma conversa
func ChatTopic(conversationID uuid.UUID) string {
	return fmt.Sprintf("chat:%s", conversationID)
}

const defaultBuffer = 16

// Hub é um Broker em memória
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]chan []byte
	nextID uint64
	buffer int
	log    zerolog.Logger
}

// NewHub cria um Hub; buffer <= 0 usa o padrão
func NewHub(buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		topics: make(map[string]map[uint64]chan []byte),
		buffer: buffer,
		log:    log,
	}
}

// Publish entrega o payload a cada assinante sem bloquear
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.topics[topic] {
		select {
		case ch <- payload:
		default:
			h.log.Debug().Str("topic", topic).Uint64("sub", id).Msg("assinante lento, evento descartado")
		}
	}
}

// Subscribe devolve o canal de eventos e a função de cancelamento.
// Cancelar fecha o canal; chamar mais de uma vez é seguro.
func (h *Hub) Subscribe(topic string) (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan []byte, h.buffer)
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]chan []byte)
	}
	h.topics[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.topics[topic], id)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers conta os assinantes de um tópico
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
