package hashing

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// ValidProof reports whether nonce witnesses proof-of-work for the pair
// (trunkNonce, branchNonce): the last two bytes of a 512-bit digest over the
// little-endian concatenation trunk|branch|self are both zero.
//
// Wire order matches §6: three 32-bit little-endian nonces packed into a
// 12-byte buffer, trunk first.
func ValidProof(trunkNonce, branchNonce, nonce uint32) bool {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], trunkNonce)
	binary.LittleEndian.PutUint32(buf[4:8], branchNonce)
	binary.LittleEndian.PutUint32(buf[8:12], nonce)
	sum := sha3.Sum512(buf[:])
	return sum[len(sum)-1] == 0 && sum[len(sum)-2] == 0
}

// ProofOfWork returns the smallest nonce >= 0 satisfying ValidProof for the
// given parent nonces. Iteration is strictly ascending starting from zero;
// expected cost is 2^16 trials given the two-byte target.
func ProofOfWork(trunkNonce, branchNonce uint32) uint32 {
	nonce := uint32(0)
	for {
		if ValidProof(trunkNonce, branchNonce, nonce) {
			return nonce
		}
		if nonce == ^uint32(0) {
			// Search space exhausted; by construction of the two-byte
			// target this is not expected to be reached.
			return nonce
		}
		nonce++
	}
}
