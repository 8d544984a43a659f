// Package locallog guarda no cliente as mensagens já decifradas de cada
// conversa, num leveldb. O log é só de inserção: uma entrada gravada nunca
// é reescrita.
package locallog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	entryPrefix = "e\x00"
	indexPrefix = "i\x00"
)

// Entry é uma mensagem já processada pelo cliente
type Entry struct {
	ID   int64  `json:"id"`
	TMs  int64  `json:"t"`
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`

	// Outgoing marca mensagens enviadas pelo dono do log; o texto não é
	// recuperável porque foi cifrado para o destinatário
	Outgoing bool `json:"outgoing,omitempty"`
	// Verified é falso quando a assinatura do remetente não confere
	Verified      bool `json:"verified"`
	DecryptFailed bool `json:"decrypt_failed,omitempty"`
}

// Time devolve o timestamp da mensagem
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.TMs)
}

// Log é o log local de mensagens
type Log struct {
	db *leveldb.DB
	mu sync.Mutex
}

// Open abre (ou cria) o log no diretório path
func Open(path string) (*Log, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir log local: %w", err)
	}
	return &Log{db: db}, nil
}

// OpenMemory abre um log que vive só na memória
func OpenMemory() (*Log, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// conversationPrefix prefixa cada nome com o seu tamanho, assim nenhuma
// conversa é prefixo de outra
func conversationPrefix(prefix, owner, peer string) []byte {
	k := []byte(prefix)
	k = binary.AppendUvarint(k, uint64(len(owner)))
	k = append(k, owner...)
	k = binary.AppendUvarint(k, uint64(len(peer)))
	return append(k, peer...)
}

// entryKey ordena por (t, id): big-endian preserva a ordem para valores não negativos
func entryKey(owner, peer string, tMs, id int64) []byte {
	k := conversationPrefix(entryPrefix, owner, peer)
	k = binary.BigEndian.AppendUint64(k, uint64(tMs))
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

func indexKey(owner, peer string, id int64) []byte {
	return binary.BigEndian.AppendUint64(conversationPrefix(indexPrefix, owner, peer), uint64(id))
}

// Append grava as entradas ainda ausentes e devolve quantas foram inseridas.
// Ids já presentes são ignorados.
func (l *Log) Append(owner, peer string, entries ...Entry) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := new(leveldb.Batch)
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if e.TMs < 0 || e.ID < 0 {
			return 0, fmt.Errorf("entrada %d com cursor negativo", e.ID)
		}
		if seen[e.ID] {
			continue
		}
		ok, err := l.db.Has(indexKey(owner, peer, e.ID), nil)
		if err != nil {
			return 0, err
		}
		if ok {
			continue
		}
		seen[e.ID] = true

		data, err := json.Marshal(e)
		if err != nil {
			return 0, err
		}
		batch.Put(entryKey(owner, peer, e.TMs, e.ID), data)
		batch.Put(indexKey(owner, peer, e.ID), nil)
	}

	if len(seen) == 0 {
		return 0, nil
	}
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return 0, fmt.Errorf("falha ao gravar log local: %w", err)
	}
	return len(seen), nil
}

// Entries devolve o log da conversa em ordem (t, id)
func (l *Log) Entries(owner, peer string) ([]Entry, error) {
	iter := l.db.NewIterator(util.BytesPrefix(conversationPrefix(entryPrefix, owner, peer)), nil)
	defer iter.Release()

	var out []Entry
	for iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("entrada corrompida no log local: %w", err)
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// Len conta as entradas da conversa
func (l *Log) Len(owner, peer string) (int, error) {
	iter := l.db.NewIterator(util.BytesPrefix(conversationPrefix(indexPrefix, owner, peer)), nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Max devolve o maior cursor (t, id) presente; (0, 0) se vazio
func (l *Log) Max(owner, peer string) (int64, int64, error) {
	iter := l.db.NewIterator(util.BytesPrefix(conversationPrefix(entryPrefix, owner, peer)), nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, 0, iter.Error()
	}
	key := iter.Key()
	if len(key) < 16 {
		return 0, 0, fmt.Errorf("chave inválida no log local")
	}
	tail := key[len(key)-16:]
	return int64(binary.BigEndian.Uint64(tail[:8])), int64(binary.BigEndian.Uint64(tail[8:])), nil
}
