// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keystore is the read-through store for this node's signing keys
// and threshold Paillier shares. Keys live in two prefixed partitions of
// the node database and are cached in memory after the first load.
package keystore

import (
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/crypto/keys"
)

var (
	signKeyPrefix  = []byte("signkeys")
	paillierPrefix = []byte("paillier")
)

// Keystore holds every signing key this node controls, indexed by key id.
type Keystore struct {
	log log.Logger

	signDB     database.Database
	paillierDB database.Database

	mu   sync.RWMutex
	keys map[ids.ShortID]*keys.PrivateKey
}

// New opens the keystore over the node database and loads all persisted
// signing keys.
func New(db database.Database, logger log.Logger) (*Keystore, error) {
	ks := &Keystore{
		log:        logger,
		signDB:     prefixdb.New(signKeyPrefix, db),
		paillierDB: prefixdb.New(paillierPrefix, db),
		keys:       make(map[ids.ShortID]*keys.PrivateKey),
	}

	iter := ks.signDB.NewIterator()
	defer iter.Release()
	for iter.Next() {
		key, err := unpackSignKey(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("corrupt signing key record: %w", err)
		}
		ks.keys[key.PublicKey().KeyID()] = key
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	logger.Info("keystore loaded", zap.Int("signKeys", len(ks.keys)))
	return ks, nil
}

// NewKey generates, persists and caches a signing key of the given role.
func (ks *Keystore) NewKey(role keys.Role) (*keys.PrivateKey, error) {
	key, err := keys.NewPrivateKey(role)
	if err != nil {
		return nil, err
	}
	if err := ks.AddKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// AddKey persists and caches a signing key.
func (ks *Keystore) AddKey(key *keys.PrivateKey) error {
	id := key.PublicKey().KeyID()
	if err := ks.signDB.Put(id[:], packSignKey(key)); err != nil {
		return err
	}

	ks.mu.Lock()
	ks.keys[id] = key
	ks.mu.Unlock()
	return nil
}

// RemoveKey drops a signing key from store and database.
func (ks *Keystore) RemoveKey(id ids.ShortID) error {
	ks.mu.Lock()
	delete(ks.keys, id)
	ks.mu.Unlock()
	return ks.signDB.Delete(id[:])
}

// Get returns the signing key with the given key id.
func (ks *Keystore) Get(id ids.ShortID) (*keys.PrivateKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[id]
	return key, ok
}

// Contains reports whether this node controls the key id.
func (ks *Keystore) Contains(id ids.ShortID) bool {
	_, ok := ks.Get(id)
	return ok
}

// KeysOfRole returns every cached key of the given role.
func (ks *Keystore) KeysOfRole(role keys.Role) []*keys.PrivateKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	var out []*keys.PrivateKey
	for _, key := range ks.keys {
		if key.Role() == role {
			out = append(out, key)
		}
	}
	return out
}

func packSignKey(key *keys.PrivateKey) []byte {
	raw := key.Bytes()
	out := make([]byte, 0, 1+len(raw))
	out = append(out, byte(key.Role()))
	return append(out, raw...)
}

func unpackSignKey(raw []byte) (*keys.PrivateKey, error) {
	if len(raw) != 1+keys.PrivateKeyLen {
		return nil, fmt.Errorf("signing key record is %d bytes", len(raw))
	}
	return keys.PrivateKeyFromBytes(raw[1:], keys.Role(raw[0]))
}
