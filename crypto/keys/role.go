// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keys implements the signing-key discipline of the voting chain:
// secp256k1 keypairs carrying a role, DER signatures with low-S
// normalization, and 160-bit key ids.
package keys

// Role restricts what a signing key may be used for. A transaction only
// accepts signatures by keys of the role prescribed for its type.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleTrustee
	RoleElection
	RoleVote
	RoleMining
)

func (r Role) String() string {
	switch r {
	case RoleTrustee:
		return "trustee"
	case RoleElection:
		return "election"
	case RoleVote:
		return "vote"
	case RoleMining:
		return "mining"
	default:
		return "unknown"
	}
}

// Valid returns true for every role a key can actually be created with.
func (r Role) Valid() bool {
	return r >= RoleTrustee && r <= RoleMining
}
