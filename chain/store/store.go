// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store implements the append-only block store: a key-value index
// mapping block and transaction hashes to disk locations, and packed
// block-file segments holding the serialized blocks themselves.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/utils/wrappers"
)

const (
	// MaxBlockFileSize rolls block files over once they exceed 8 MiB
	MaxBlockFileSize = 8 << 20
)

var (
	// ErrInvalidBlock is returned when a block does not chain onto the
	// local latest block
	ErrInvalidBlock = errors.New("block does not extend the latest block")
	// ErrEmptyChain is returned when the chain holds only the genesis
	// anchor
	ErrEmptyChain = errors.New("block chain is empty")
	errCorrupt    = errors.New("block file corrupt")
	errBadGenesis = errors.New("database initialized with a different genesis hash")

	blockInfoPrefix = []byte("bl")
	locatorPrefix   = []byte("l")

	genesisKey = []byte("genesisBlock")
	latestKey  = []byte("latestBlock")
	currentKey = []byte("currentLocation")
)

// Locator finds a block record on disk: the block file id and the byte
// offset of the record inside it.
type Locator struct {
	FileID uint32
	Offset int64
}

// BlockInfo is the indexed metadata of a block: where it lives and which
// block precedes it.
type BlockInfo struct {
	Locator  Locator
	PrevHash ids.ID
}

// Store is the process-wide chain state. All operations hold one mutex;
// file I/O dominates, so reads are serialized too.
type Store struct {
	mu sync.Mutex

	db  database.Database
	dir string
	log log.Logger

	genesis ids.ID
	latest  ids.ID
	current Locator
}

// New opens a store over the given index database and block-file
// directory, creating the metadata on first use and validating the
// genesis anchor on every later one.
func New(db database.Database, dir string, logger log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blockchain directory: %w", err)
	}

	s := &Store{
		db:      db,
		dir:     dir,
		log:     logger,
		genesis: chain.GenesisBlockHash,
	}

	stored, err := db.Get(genesisKey)
	switch err {
	case nil:
		storedID, err := ids.ToID(stored)
		if err != nil {
			return nil, err
		}
		if storedID != s.genesis {
			return nil, errBadGenesis
		}
		if err := s.loadMetaData(); err != nil {
			return nil, err
		}
	case database.ErrNotFound:
		s.latest = s.genesis
		if err := db.Put(genesisKey, s.genesis[:]); err != nil {
			return nil, err
		}
		if err := s.saveMetaData(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s, nil
}

// GenesisBlockHash returns the genesis anchor.
func (s *Store) GenesisBlockHash() ids.ID {
	return s.genesis
}

// LatestBlockHash returns the hash of the newest block, or the genesis
// anchor for an empty chain.
func (s *Store) LatestBlockHash() ids.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// AddBlock appends a block. The block must chain onto the latest block.
func (s *Store) AddBlock(b *chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != b.Header.PrevBlock {
		return ErrInvalidBlock
	}

	path := s.filePath(s.current.FileID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating block file: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		s.current.Offset = 0
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening block file: %w", err)
	}
	defer f.Close()

	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if pos != s.current.Offset {
		return fmt.Errorf("%w: file ends at %d, index expects %d", errCorrupt, pos, s.current.Offset)
	}

	raw, err := b.Bytes()
	if err != nil {
		return err
	}

	hash := b.Hash()
	batch := s.db.NewBatch()
	if err := batch.Put(blockInfoKey(hash), packBlockInfo(BlockInfo{
		Locator:  s.current,
		PrevHash: b.Header.PrevBlock,
	})); err != nil {
		return err
	}
	for _, tx := range b.Txs {
		txHash := chain.TxHash(tx)
		if err := batch.Put(locatorKey(txHash), packLocator(s.current)); err != nil {
			return err
		}
	}

	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("writing block file: %w", err)
	}

	s.current.Offset = pos + int64(len(raw))
	if s.current.Offset > MaxBlockFileSize {
		s.current.FileID++
	}
	s.latest = hash

	if err := batch.Put(latestKey, s.latest[:]); err != nil {
		return err
	}
	if err := batch.Put(currentKey, packLocator(s.current)); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}

	s.log.Debug("appended block",
		zap.Stringer("hash", hash),
		zap.Uint32("file", s.current.FileID),
		zap.Int64("offset", s.current.Offset),
	)
	return nil
}

// ContainsBlock reports whether the block hash is indexed.
func (s *Store) ContainsBlock(hash ids.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.db.Has(blockInfoKey(hash))
	return err == nil && ok
}

// ContainsTx reports whether the transaction hash is indexed.
func (s *Store) ContainsTx(hash ids.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.db.Has(locatorKey(hash))
	return err == nil && ok
}

// GetBlock loads the block with the given hash. Returns
// database.ErrNotFound when the hash is not indexed.
func (s *Store) GetBlock(hash ids.ID) (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBlock(hash)
}

func (s *Store) getBlock(hash ids.ID) (*chain.Block, error) {
	info, err := s.getBlockInfo(hash)
	if err != nil {
		return nil, err
	}
	return s.readBlock(info.Locator)
}

// GetLatestBlock loads the newest block. Returns ErrEmptyChain when only
// the genesis anchor exists.
func (s *Store) GetLatestBlock() (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == s.genesis {
		return nil, ErrEmptyChain
	}
	return s.getBlock(s.latest)
}

// GetBlockByTx loads the block containing the given transaction.
func (s *Store) GetBlockByTx(txHash ids.ID) (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBlockByTx(txHash)
}

func (s *Store) getBlockByTx(txHash ids.ID) (*chain.Block, error) {
	raw, err := s.db.Get(locatorKey(txHash))
	if err != nil {
		return nil, err
	}
	loc, err := unpackLocator(raw)
	if err != nil {
		return nil, err
	}
	return s.readBlock(loc)
}

// GetTx loads a committed transaction by hash.
func (s *Store) GetTx(txHash ids.ID) (chain.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.getBlockByTx(txHash)
	if err != nil {
		return nil, err
	}
	for _, tx := range b.Txs {
		if chain.TxHash(tx) == txHash {
			return tx, nil
		}
	}
	return nil, database.ErrNotFound
}

// GetAllBlocks loads the blocks from start to end inclusive, oldest
// first. When start is the genesis anchor no start block is materialized.
func (s *Store) GetAllBlocks(start, end ids.ID) ([]*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAllBlocks(start, end)
}

func (s *Store) getAllBlocks(start, end ids.ID) ([]*chain.Block, error) {
	var startBlock *chain.Block
	if start != s.genesis {
		var err error
		if startBlock, err = s.getBlock(start); err != nil {
			return nil, err
		}
	}

	var blocks []*chain.Block
	hash := end
	for hash != start {
		if hash == s.genesis {
			return nil, database.ErrNotFound
		}
		b, err := s.getBlock(hash)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		hash = b.Header.PrevBlock
	}
	if startBlock != nil {
		blocks = append(blocks, startBlock)
	}

	// walked back to front; flip into chain order
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks, nil
}

// CutOffAfter removes every block strictly after the given one: index
// entries, whole later block files, and the tail of the shared file. The
// store is left ready to append on top of the retained block.
func (s *Store) CutOffAfter(hash ids.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hash == s.latest {
		return nil
	}

	startInfo, err := s.getBlockInfo(hash)
	if err != nil {
		return err
	}

	blocks, err := s.getAllBlocks(hash, s.latest)
	if err != nil {
		return err
	}

	// blocks[0] is the retained block, blocks[1] the first one removed
	secondInfo, err := s.getBlockInfo(blocks[1].Hash())
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	for _, b := range blocks[1:] {
		for _, tx := range b.Txs {
			txHash := chain.TxHash(tx)
			if err := batch.Delete(locatorKey(txHash)); err != nil {
				return err
			}
		}
		if err := batch.Delete(blockInfoKey(b.Hash())); err != nil {
			return err
		}
	}

	for id := s.current.FileID; id > startInfo.Locator.FileID; id-- {
		if err := os.Remove(s.filePath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing block file %d: %w", id, err)
		}
	}

	path := s.filePath(startInfo.Locator.FileID)
	var tail int64
	if secondInfo.Locator.FileID == startInfo.Locator.FileID {
		// the first removed block shared the file; drop everything from
		// its offset on
		tail = secondInfo.Locator.Offset
		if err := os.Truncate(path, tail); err != nil {
			return fmt.Errorf("truncating block file: %w", err)
		}
	} else {
		st, err := os.Stat(path)
		if err != nil {
			return err
		}
		tail = st.Size()
	}

	s.latest = hash
	s.current = Locator{FileID: startInfo.Locator.FileID, Offset: tail}
	if s.current.Offset > MaxBlockFileSize {
		s.current.FileID++
	}

	if err := batch.Put(latestKey, s.latest[:]); err != nil {
		return err
	}
	if err := batch.Put(currentKey, packLocator(s.current)); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}

	s.log.Info("cut chain",
		zap.Stringer("latest", s.latest),
		zap.Int("removedBlocks", len(blocks)-1),
	)
	return nil
}

// Clear removes every block and resets the store to its genesis state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := s.latest
	batch := s.db.NewBatch()
	for hash != s.genesis {
		info, err := s.getBlockInfo(hash)
		if err != nil {
			return err
		}
		b, err := s.readBlock(info.Locator)
		if err != nil {
			return err
		}
		for _, tx := range b.Txs {
			txHash := chain.TxHash(tx)
			if err := batch.Delete(locatorKey(txHash)); err != nil {
				return err
			}
		}
		if err := batch.Delete(blockInfoKey(hash)); err != nil {
			return err
		}
		hash = info.PrevHash
	}

	for id := int64(s.current.FileID); id >= 0; id-- {
		if err := os.Remove(s.filePath(uint32(id))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	s.latest = s.genesis
	s.current = Locator{}
	if err := batch.Put(latestKey, s.latest[:]); err != nil {
		return err
	}
	if err := batch.Put(currentKey, packLocator(s.current)); err != nil {
		return err
	}
	return batch.Write()
}

// Log dumps the chain from newest to oldest through the store logger.
func (s *Store) Log() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info("blockchain state",
		zap.Stringer("genesis", s.genesis),
		zap.Stringer("latest", s.latest),
		zap.Uint32("file", s.current.FileID),
		zap.Int64("offset", s.current.Offset),
	)

	hash := s.latest
	for hash != s.genesis {
		info, err := s.getBlockInfo(hash)
		if err != nil {
			s.log.Warn("broken chain link", zap.Stringer("hash", hash), zap.Error(err))
			return
		}
		s.log.Info("block",
			zap.Stringer("hash", hash),
			zap.Stringer("prev", info.PrevHash),
			zap.Uint32("file", info.Locator.FileID),
			zap.Int64("offset", info.Locator.Offset),
		)
		hash = info.PrevHash
	}
}

func (s *Store) loadMetaData() error {
	raw, err := s.db.Get(latestKey)
	if err != nil {
		return err
	}
	if s.latest, err = ids.ToID(raw); err != nil {
		return err
	}

	raw, err = s.db.Get(currentKey)
	if err != nil {
		return err
	}
	s.current, err = unpackLocator(raw)
	return err
}

func (s *Store) saveMetaData() error {
	if err := s.db.Put(latestKey, s.latest[:]); err != nil {
		return err
	}
	return s.db.Put(currentKey, packLocator(s.current))
}

func (s *Store) getBlockInfo(hash ids.ID) (BlockInfo, error) {
	raw, err := s.db.Get(blockInfoKey(hash))
	if err != nil {
		return BlockInfo{}, err
	}
	return unpackBlockInfo(raw)
}

// readBlock deserializes one block record starting at the locator.
func (s *Store) readBlock(loc Locator) (*chain.Block, error) {
	f, err := os.Open(s.filePath(loc.FileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(loc.Offset, io.SeekStart); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	p := &wrappers.Packer{Bytes: raw}
	b, err := chain.UnpackBlock(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errCorrupt, err)
	}
	return b, nil
}

// filePath names block files like blockfile_0000000006.bin.
func (s *Store) filePath(id uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("blockfile_%010d.bin", id))
}

func blockInfoKey(hash ids.ID) []byte {
	return append(append([]byte{}, blockInfoPrefix...), hash[:]...)
}

func locatorKey(hash ids.ID) []byte {
	return append(append([]byte{}, locatorPrefix...), hash[:]...)
}

func packLocator(loc Locator) []byte {
	p := &wrappers.Packer{MaxSize: wrappers.IntLen + wrappers.LongLen}
	p.PackInt(loc.FileID)
	p.PackLong(uint64(loc.Offset))
	return p.Bytes
}

func unpackLocator(raw []byte) (Locator, error) {
	p := &wrappers.Packer{Bytes: raw}
	loc := Locator{
		FileID: p.UnpackInt(),
		Offset: int64(p.UnpackLong()),
	}
	if p.Errored() {
		return Locator{}, p.Err
	}
	return loc, nil
}

func packBlockInfo(info BlockInfo) []byte {
	p := &wrappers.Packer{MaxSize: wrappers.IntLen + wrappers.LongLen + ids.IDLen}
	p.PackInt(info.Locator.FileID)
	p.PackLong(uint64(info.Locator.Offset))
	p.PackID(info.PrevHash)
	return p.Bytes
}

func unpackBlockInfo(raw []byte) (BlockInfo, error) {
	p := &wrappers.Packer{Bytes: raw}
	info := BlockInfo{
		Locator: Locator{
			FileID: p.UnpackInt(),
			Offset: int64(p.UnpackLong()),
		},
		PrevHash: p.UnpackID(),
	}
	if p.Errored() {
		return BlockInfo{}, p.Err
	}
	return info, nil
}
