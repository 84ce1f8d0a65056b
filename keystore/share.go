// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keystore

import (
	"fmt"
	"os"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/utils/wrappers"
)

// ElectionShare binds a trustee's Paillier share to the election it
// decrypts and the signing key whose owner received it. The election
// creator exports one per trustee; trustees import theirs.
type ElectionShare struct {
	// Election is the hash of the TxElection
	Election ids.ID
	// SignKey identifies the trustee signing key the share was dealt to
	SignKey ids.ShortID
	Share   *paillier.PartialKey
}

// AddShare persists a Paillier share for later tallying.
func (ks *Keystore) AddShare(share ElectionShare) error {
	return ks.paillierDB.Put(shareKey(share.Election, share.SignKey), packShare(share))
}

// SharesFor returns every Paillier share held for an election.
func (ks *Keystore) SharesFor(election ids.ID) ([]ElectionShare, error) {
	iter := ks.paillierDB.NewIteratorWithPrefix(election[:])
	defer iter.Release()

	var out []ElectionShare
	for iter.Next() {
		share, err := unpackShare(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("corrupt paillier share record: %w", err)
		}
		out = append(out, share)
	}
	return out, iter.Error()
}

// WriteShareFile exports a share as a standalone blob a trustee can
// import on another node.
func WriteShareFile(path string, share ElectionShare) error {
	return os.WriteFile(path, packShare(share), 0o600)
}

// ReadShareFile imports a share blob.
func ReadShareFile(path string) (ElectionShare, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ElectionShare{}, err
	}
	return unpackShare(raw)
}

func shareKey(election ids.ID, signKey ids.ShortID) []byte {
	out := make([]byte, 0, len(election)+len(signKey))
	out = append(out, election[:]...)
	return append(out, signKey[:]...)
}

func packShare(share ElectionShare) []byte {
	p := &wrappers.Packer{MaxSize: 1 << 20}
	p.PackID(share.Election)
	p.PackShortID(share.SignKey)
	paillier.PackPartialKey(p, share.Share)
	return p.Bytes
}

func unpackShare(raw []byte) (ElectionShare, error) {
	p := &wrappers.Packer{Bytes: raw}
	share := ElectionShare{
		Election: p.UnpackID(),
		SignKey:  p.UnpackShortID(),
		Share:    paillier.UnpackPartialKey(p),
	}
	if p.Errored() {
		return ElectionShare{}, p.Err
	}
	return share, nil
}
