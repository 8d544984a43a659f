package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pqchat-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewInMemoryStore() })
}

func TestInMemoryStoreConcurrentHandle(t *testing.T) {
	s := NewInMemoryStore()

	var won atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := &models.User{ID: uuid.New(), Handle: "alice", CreatedAt: time.Now()}
			if s.CreateUser(context.Background(), u) == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}
