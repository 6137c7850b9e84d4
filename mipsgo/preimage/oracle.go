package preimage

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Oracle resolves the full pre-image of a given pre-image key.
type Oracle interface {
	Get(key Key) ([]byte, error)
}

// Hinter is an interface to write hints to the host.
// This may be implemented as a no-op if the program is executing in a
// read-only environment where the host has all pre-images ready.
type Hinter interface {
	Hint(v Hint) error
}

// OracleClient implements the Oracle by writing the pre-image key to the
// given channel, and reading back a length-prefixed value.
// Every framing violation (short read, channel closed mid-message) is a
// fatal protocol error.
type OracleClient struct {
	rw io.ReadWriter
}

func NewOracleClient(rw io.ReadWriter) *OracleClient {
	return &OracleClient{rw: rw}
}

var _ Oracle = (*OracleClient)(nil)

func (o *OracleClient) Get(key Key) ([]byte, error) {
	h := key.PreimageKey()
	if _, err := o.rw.Write(h[:]); err != nil {
		return nil, fmt.Errorf("failed to write key %x to pre-image oracle: %w", h, err)
	}

	var length uint64
	if err := binary.Read(o.rw, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read pre-image length of key %x from pre-image oracle: %w", h, err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(o.rw, payload); err != nil {
		return nil, fmt.Errorf("failed to read pre-image payload (length %d) of key %x from pre-image oracle: %w", length, h, err)
	}
	return payload, nil
}

// HintWriter writes hints to a channel (e.g. a special file descriptor),
// for a pre-image oracle service to prepare specific pre-images.
// The hint is length-prefixed, and acknowledged with a single byte,
// so the server is guaranteed to have processed it before the client
// requests the pre-images the hint announced.
type HintWriter struct {
	rw io.ReadWriter
}

var _ Hinter = (*HintWriter)(nil)

func NewHintWriter(rw io.ReadWriter) *HintWriter {
	return &HintWriter{rw: rw}
}

func (hw *HintWriter) Hint(v Hint) error {
	hint := v.Hint()
	var hintBytes []byte
	hintBytes = binary.BigEndian.AppendUint32(hintBytes, uint32(len(hint)))
	hintBytes = append(hintBytes, []byte(hint)...)
	if _, err := hw.rw.Write(hintBytes); err != nil {
		return fmt.Errorf("failed to write pre-image hint: %w", err)
	}
	if _, err := hw.rw.Read([]byte{0}); err != nil {
		return fmt.Errorf("failed to read pre-image hint ack: %w", err)
	}
	return nil
}
