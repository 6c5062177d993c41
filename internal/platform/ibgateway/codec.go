package ibgateway

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Wire format: each message is a 4-byte big-endian payload length followed by
// the payload, which is a sequence of NUL-terminated fields. The first field
// is the message tag.
const (
	// Outbound tags.
	msgStartAPI = "START_API"
	msgReqHist  = "REQ_HIST"

	// Inbound tags.
	msgAck     = "ACK"
	msgHistBar = "HIST_BAR"
	msgHistEnd = "HIST_END"
	msgErr     = "ERR"
)

// maxFrameSize guards against a corrupt length prefix.
const maxFrameSize = 1 << 20

// writeMessage frames the fields and writes them as a single message.
func writeMessage(w io.Writer, fields ...string) error {
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f)
		sb.WriteByte(0)
	}
	payload := sb.String()

	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(payload)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, payload)
	return err
}

// readMessage reads one framed message and splits it into fields.
func readMessage(r *bufio.Reader) ([]string, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	fields := strings.Split(string(payload), "\x00")
	// Every field is NUL-terminated, so the split leaves a trailing empty
	// element that is not part of the message.
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty message frame")
	}
	return fields, nil
}
