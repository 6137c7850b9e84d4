package preimage

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type readWritePair struct {
	io.Reader
	io.Writer
}

func bidirectionalPipe() (a, b io.ReadWriter) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return readWritePair{Reader: ar, Writer: aw}, readWritePair{Reader: br, Writer: bw}
}

func TestOracleClientGet(t *testing.T) {
	cases := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "small", size: 13},
		{name: "one kilobyte", size: 1024},
		{name: "unaligned to word", size: 1021},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			value := make([]byte, c.size)
			_, err := rand.Read(value)
			require.NoError(t, err)

			client, server := bidirectionalPipe()
			key := Keccak256Key{0xAA}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				var gotKey [32]byte
				_, err := io.ReadFull(server, gotKey[:])
				require.NoError(t, err)
				require.Equal(t, key.PreimageKey(), gotKey, "server receives the typed key")
				require.NoError(t, binary.Write(server, binary.BigEndian, uint64(len(value))))
				if len(value) > 0 {
					// io.Pipe rendezvouses even on a 0-byte write, but the
					// client never reads for an empty payload.
					_, err = server.Write(value)
					require.NoError(t, err)
				}
			}()

			result, err := NewOracleClient(client).Get(key)
			require.NoError(t, err)
			require.Equal(t, value, result)
			wg.Wait()
		})
	}
}

func TestOracleClientShortRead(t *testing.T) {
	client, server := bidirectionalPipe()
	go func() {
		var gotKey [32]byte
		_, _ = io.ReadFull(server, gotKey[:])
		_ = binary.Write(server, binary.BigEndian, uint64(10))
		_, _ = server.Write([]byte{1, 2, 3})
		server.(readWritePair).Writer.(*io.PipeWriter).Close()
	}()
	_, err := NewOracleClient(client).Get(Keccak256Key{0xAA})
	require.ErrorContains(t, err, "failed to read pre-image payload", "truncated payload is a protocol error")
}

func TestHintWriter(t *testing.T) {
	client, server := bidirectionalPipe()
	hint := RawHint("fetch 0x1234")

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		var length uint32
		require.NoError(t, binary.Read(server, binary.BigEndian, &length))
		got = make([]byte, length)
		_, err := io.ReadFull(server, got)
		require.NoError(t, err)
		_, err = server.Write([]byte{0}) // ack
		require.NoError(t, err)
	}()

	require.NoError(t, NewHintWriter(client).Hint(hint))
	wg.Wait()
	require.Equal(t, []byte(hint), got, "server receives the raw hint")
}

func TestHintWriterBrokenAck(t *testing.T) {
	client, server := bidirectionalPipe()
	go func() {
		var length uint32
		_ = binary.Read(server, binary.BigEndian, &length)
		buf := make([]byte, length)
		_, _ = io.ReadFull(server, buf)
		server.(readWritePair).Writer.(*io.PipeWriter).Close()
	}()
	err := NewHintWriter(client).Hint(RawHint("no ack coming"))
	require.ErrorContains(t, err, "failed to read pre-image hint ack")
}

func TestFileChannelRoundTrip(t *testing.T) {
	a, b, err := CreateBidirectionalChannel()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	msg := []byte("hello over the pipe pair")
	go func() {
		_, _ = a.Write(msg)
	}()
	got := make([]byte, len(msg))
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, msg, got)

	reply := []byte("and back again")
	go func() {
		_, _ = b.Write(reply)
	}()
	got = make([]byte, len(reply))
	_, err = io.ReadFull(a, got)
	require.NoError(t, err)
	require.Equal(t, reply, got)
}
