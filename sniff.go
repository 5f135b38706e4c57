package cellar

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLimit is the number of leading payload bytes handed to a Sniffer.
const SniffLimit = 3072

// Sniffer detects a content type from the leading bytes of a payload. It
// reports ok=false when the bytes carry no recognizable binary signature.
type Sniffer interface {
	Sniff(head []byte) (mime string, ok bool)
}

// MimeSniffer detects binary formats by magic numbers. Text of any kind and
// unrecognized bytes are reported as undetected so that a declared type wins.
type MimeSniffer struct{}

func (MimeSniffer) Sniff(head []byte) (string, bool) {
	if len(head) == 0 {
		return "", false
	}

	detected := mimetype.Detect(head)
	if detected.Is("application/octet-stream") {
		return "", false
	}
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return "", false
		}
	}

	mediaType, _, _ := strings.Cut(detected.String(), ";")
	return strings.TrimSpace(mediaType), true
}

// peek reads up to SniffLimit bytes from r and returns them together with a
// reader that yields the whole stream again.
func peek(r io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, SniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, err
	}
	head = head[:n]

	return head, io.MultiReader(bytes.NewReader(head), r), nil
}
