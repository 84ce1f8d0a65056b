// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node assembles a full peer: database, keystore, block store,
// gossip network with its protocols, miner and controller, plus the
// process lock that keeps two instances out of one data directory.
package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/config"
	"github.com/luxfi/bitvote/controller"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/election"
	"github.com/luxfi/bitvote/keystore"
	"github.com/luxfi/bitvote/miner"
	"github.com/luxfi/bitvote/network"
	"github.com/luxfi/bitvote/network/protocols"
	"github.com/luxfi/bitvote/utils/timer/mockable"
)

// Node is one running peer.
type Node struct {
	cfg config.Config
	log log.Logger

	lockFile *os.File
	db       database.Database

	Store      *store.Store
	Keystore   *keystore.Keystore
	Registry   *election.Registry
	Network    *network.Network
	Miner      *miner.Manager
	Controller *controller.Controller

	PingPong  *protocols.PingPong
	Heartbeat *protocols.Heartbeat
	Text      *protocols.Text

	stop chan struct{}
}

// New builds a node from the resolved configuration.
func New(cfg config.Config, logger log.Logger) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:  cfg,
		log:  logger,
		stop: make(chan struct{}),
	}

	// one process per data directory
	lockPath := filepath.Join(cfg.DataDir, ".lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("data directory %s is in use: %w", cfg.DataDir, err)
	}
	n.lockFile = lockFile

	chainDir := filepath.Join(cfg.DataDir, "databases", "blockchain")
	db, err := badgerdb.New(filepath.Join(chainDir, "index"), nil, "", nil)
	if err != nil {
		n.release()
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	n.db = db

	n.Store, err = store.New(db, chainDir, logger)
	if err != nil {
		n.release()
		return nil, err
	}
	n.Keystore, err = keystore.New(db, logger)
	if err != nil {
		n.release()
		return nil, err
	}
	n.Registry = election.NewRegistry(db, n.Store, logger)

	registry := metric.NewRegistry()
	clock := &mockable.Clock{}

	n.Network, err = network.New(network.Config{
		Port:           cfg.Port,
		MaxConnections: cfg.MaxConnections,
		FloodTTL:       cfg.FloodingTTL,
		IdleTimeout:    2 * cfg.HeartbeatInterval,
	}, logger, registry)
	if err != nil {
		n.release()
		return nil, err
	}

	protocols.NewInitialize(n.Network, logger, n.Store.LatestBlockHash)
	n.PingPong = protocols.NewPingPong(n.Network, logger, clock, cfg.PingInterval, cfg.DuplicateValidity, n.stop)
	n.Heartbeat = protocols.NewHeartbeat(n.Network, logger, cfg.HeartbeatInterval, n.stop)
	n.Text = protocols.NewText(n.Network, logger)
	txProto := protocols.NewTransactions(n.Network, logger, clock, cfg.DuplicateValidity)
	blocksProto := protocols.NewBlocks(n.Network, logger, clock, cfg.DuplicateValidity)

	n.Controller = controller.New(n.Store, n.Keystore, n.Registry, txProto, blocksProto, clock, logger)

	// mine with the stored mining key, or mint one on first start
	miningKeys := n.Keystore.KeysOfRole(keys.RoleMining)
	var miningKey *keys.PrivateKey
	if len(miningKeys) > 0 {
		miningKey = miningKeys[0]
	} else {
		if miningKey, err = n.Keystore.NewKey(keys.RoleMining); err != nil {
			n.release()
			return nil, err
		}
		logger.Info("generated mining key",
			zap.Stringer("keyID", miningKey.PublicKey().KeyID()),
		)
	}

	n.Miner, err = miner.New(
		miner.Config{Threads: cfg.MiningThreads},
		n.Store,
		blocksProto,
		miningKey,
		n.Controller.VerifyTx,
		clock,
		logger,
		registry,
	)
	if err != nil {
		n.release()
		return nil, err
	}
	n.Controller.SetMiner(n.Miner)

	return n, nil
}

// Start opens the listener and dials the configured peers.
func (n *Node) Start() error {
	if err := n.Network.Listen(); err != nil {
		return err
	}
	for _, peer := range n.cfg.Connect {
		if err := n.Network.Connect(peer); err != nil {
			n.log.Warn("could not connect to peer",
				zap.String("peer", peer),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Shutdown stops the timers, closes every connection and releases the
// data directory.
func (n *Node) Shutdown() {
	n.log.Info("shutting down")
	close(n.stop)
	n.Network.Shutdown()
	n.release()
}

func (n *Node) release() {
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.log.Warn("closing database", zap.Error(err))
		}
		n.db = nil
	}
	if n.lockFile != nil {
		_ = unix.Flock(int(n.lockFile.Fd()), unix.LOCK_UN)
		_ = n.lockFile.Close()
		n.lockFile = nil
	}
}
