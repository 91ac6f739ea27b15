package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nftlend/storage"
)

// Manager is the journaled key/value view over the backing database. Writes
// accumulate in an in-memory overlay until Commit flushes them in one batch;
// Snapshot and RevertToSnapshot roll partial work back inside that overlay.
type Manager struct {
	db      storage.Database
	dirty   map[string]entry
	journal []change
}

type entry struct {
	value   []byte
	deleted bool
}

type change struct {
	key     string
	prev    entry
	existed bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]entry)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if e, ok := m.dirty[string(hashed)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) write(hashed []byte, value []byte, deleted bool) {
	k := string(hashed)
	prev, existed := m.dirty[k]
	m.journal = append(m.journal, change{key: k, prev: prev, existed: existed})
	m.dirty[k] = entry{value: value, deleted: deleted}
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		c := m.journal[i]
		if c.existed {
			m.dirty[c.key] = c.prev
		} else {
			delete(m.dirty, c.key)
		}
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Commit flushes the overlay to the database atomically and clears the journal.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	batch := m.db.NewBatch()
	for k, e := range m.dirty {
		if e.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), e.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.Discard()
	return nil
}

// Discard drops all uncommitted writes.
func (m *Manager) Discard() {
	m.dirty = make(map[string]entry)
	m.journal = m.journal[:0]
}

// Pending reports how many keys carry uncommitted writes.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(kvKey(key), encoded, false)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(kvKey(key), nil, true)
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	list, err := m.byteList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVRemove drops value from the byte slice list stored under key.
func (m *Manager) KVRemove(key []byte, value []byte) error {
	list, err := m.byteList(key)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, existing := range list {
		if !bytes.Equal(existing, value) {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return m.KVPut(key, kept)
}

func (m *Manager) byteList(key []byte) ([][]byte, error) {
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
