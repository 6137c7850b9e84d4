package cmd

import (
	"fmt"
	"io"

	"log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

func Logger(w io.Writer, lvl slog.Level) log.Logger {
	return log.NewLogger(log.LogfmtHandlerWithLevel(w, lvl))
}

// LoggingWriter adapts a logger to an io.Writer, so the guest program's
// stdout and stderr streams land in the host log instead of the host's
// own output. Name labels the guest stream the write came from.
type LoggingWriter struct {
	Name string
	Log  log.Logger
}

func printableText(b string) bool {
	for _, c := range b {
		if (c < 0x20 || c >= 0x7F) && (c != '\n' && c != '\t') {
			return false
		}
	}
	return true
}

func (lw *LoggingWriter) Write(b []byte) (int, error) {
	// guest programs write arbitrary bytes, hex-encode anything non-printable
	if t := string(b); printableText(t) {
		lw.Log.Info("guest output", "stream", lw.Name, "text", t)
	} else {
		lw.Log.Info("guest output", "stream", lw.Name, "data", hexutil.Bytes(b))
	}
	return len(b), nil
}

// HexU32 lazy-formats registers and program counters for log attributes.
type HexU32 uint32

func (v HexU32) String() string {
	return fmt.Sprintf("%08x", uint32(v))
}

func (v HexU32) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
