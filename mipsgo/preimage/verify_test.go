package preimage

import (
	"crypto/sha256"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	data map[[32]byte][]byte
	gets int
}

func (s *stubOracle) Get(key Key) ([]byte, error) {
	s.gets++
	return s.data[key.PreimageKey()], nil
}

func TestVerifyingOracle(t *testing.T) {
	t.Run("keccak256 valid", func(t *testing.T) {
		value := []byte("abc")
		key := Keccak256Key(crypto.Keccak256Hash(value))
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): value}}
		got, err := NewVerifyingOracle(inner).Get(key)
		require.NoError(t, err)
		require.Equal(t, value, got)
	})

	t.Run("keccak256 corrupted", func(t *testing.T) {
		// the value "abd" does not hash to the key of "abc"
		key := Keccak256Key(crypto.Keccak256Hash([]byte("abc")))
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): []byte("abd")}}
		_, err := NewVerifyingOracle(inner).Get(key)
		var intErr *IntegrityError
		require.ErrorAs(t, err, &intErr)
		require.Equal(t, key.PreimageKey(), intErr.Key)
		require.NotEqual(t, intErr.Key, intErr.Computed)
	})

	t.Run("sha256 valid", func(t *testing.T) {
		value := []byte("abc")
		key := Sha256Key(sha256.Sum256(value))
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): value}}
		got, err := NewVerifyingOracle(inner).Get(key)
		require.NoError(t, err)
		require.Equal(t, value, got)
	})

	t.Run("sha256 corrupted", func(t *testing.T) {
		key := Sha256Key(sha256.Sum256([]byte("abc")))
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): []byte("abd")}}
		_, err := NewVerifyingOracle(inner).Get(key)
		var intErr *IntegrityError
		require.ErrorAs(t, err, &intErr)
	})

	t.Run("local keys pass through", func(t *testing.T) {
		key := LocalIndexKey(7)
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): []byte("anything")}}
		got, err := NewVerifyingOracle(inner).Get(key)
		require.NoError(t, err)
		require.Equal(t, []byte("anything"), got)
	})

	t.Run("unknown key type", func(t *testing.T) {
		key := RawKey{0xFF}
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): []byte("x")}}
		_, err := NewVerifyingOracle(inner).Get(key)
		require.ErrorContains(t, err, "unsupported pre-image key type")
	})

	t.Run("cache serves repeats", func(t *testing.T) {
		value := []byte("abc")
		key := Keccak256Key(crypto.Keccak256Hash(value))
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): value}}
		v := NewVerifyingOracle(inner)
		first, err := v.Get(key)
		require.NoError(t, err)
		second, err := v.Get(key)
		require.NoError(t, err)
		require.Equal(t, first, second, "identical bytes for the run lifetime")
		require.Equal(t, 1, inner.gets, "second request served from cache")
	})

	t.Run("rejected values are not cached", func(t *testing.T) {
		key := Keccak256Key(crypto.Keccak256Hash([]byte("abc")))
		inner := &stubOracle{data: map[[32]byte][]byte{key.PreimageKey(): []byte("abd")}}
		v := NewVerifyingOracle(inner)
		_, err := v.Get(key)
		require.Error(t, err)
		_, err = v.Get(key)
		require.Error(t, err, "bad value is re-fetched and rejected again")
		require.Equal(t, 2, inner.gets)
	})
}
