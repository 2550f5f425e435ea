package domain

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

// Canonical orders a pair so the bytewise smaller identifier comes first.
func Canonical(a, b AssetID) (AssetID, AssetID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// PairIdentifier derives the pool id for a pair. PairIdentifier(a, b) == PairIdentifier(b, a).
func PairIdentifier(a, b AssetID) PoolID {
	a, b = Canonical(a, b)

	var buf [2 * common.AddressLength]byte
	copy(buf[:common.AddressLength], a[:])
	copy(buf[common.AddressLength:], b[:])
	return PoolID(blake3.Sum256(buf[:]))
}

// IsNull reports whether id is the null asset identifier.
func IsNull(id AssetID) bool {
	return id == (AssetID{})
}
