package session

import (
	"crypto/rand"
	"math/big"
)

// maxSeed bounds the random seed to the positive range of an int64
// (math.MaxInt64), matching the original's plain Python int seed.
var maxSeed = big.NewInt(1<<63 - 1)

// GenerateSeed picks a random shared RNG seed for a host that doesn't pin
// one explicitly, the way the teacher's p2p/crypto.go draws its encryption
// exponent from crypto/rand rather than math/rand.
func GenerateSeed() (int64, error) {
	n, err := rand.Int(rand.Reader, maxSeed)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
