package preimage

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// IntegrityError is returned when an oracle response does not hash back
// to the requested key. It is fatal: the oracle is not trusted, and a
// mismatched value must never enter the execution trace.
type IntegrityError struct {
	Key      [32]byte
	Computed [32]byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("pre-image integrity violation: value of key %x hashes to %x", e.Key, e.Computed)
}

// VerifyingOracle wraps an Oracle with the soundness boundary of the
// protocol: every returned value is re-hashed and checked against the
// requested key before it is accepted. Accepted values are cached by key
// for the remainder of the run, so a repeated request never re-issues I/O
// and is guaranteed to return the identical bytes.
type VerifyingOracle struct {
	inner Oracle

	cache map[[32]byte][]byte
}

var _ Oracle = (*VerifyingOracle)(nil)

func NewVerifyingOracle(inner Oracle) *VerifyingOracle {
	return &VerifyingOracle{
		inner: inner,
		cache: make(map[[32]byte][]byte),
	}
}

func (v *VerifyingOracle) Get(key Key) ([]byte, error) {
	h := key.PreimageKey()
	if dat, ok := v.cache[h]; ok {
		return dat, nil
	}
	dat, err := v.inner.Get(key)
	if err != nil {
		return nil, err
	}
	if err := verify(h, dat); err != nil {
		return nil, err
	}
	v.cache[h] = dat
	return dat, nil
}

func verify(key [32]byte, value []byte) error {
	var computed [32]byte
	switch KeyType(key[0]) {
	case LocalKeyType:
		// local keys index host-committed program inputs, there is nothing to hash
		return nil
	case Keccak256KeyType:
		computed = Keccak256Key(crypto.Keccak256Hash(value)).PreimageKey()
	case Sha256KeyType:
		computed = Sha256Key(sha256.Sum256(value)).PreimageKey()
	default:
		return fmt.Errorf("unsupported pre-image key type %d (key %x)", key[0], key)
	}
	if computed != key {
		return &IntegrityError{Key: key, Computed: computed}
	}
	return nil
}
