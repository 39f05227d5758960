package linediff

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for encoding names that are not registered
// IANA character sets or have no decoder.
var ErrUnknownEncoding = errors.New("unknown encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts content in the named IANA encoding to a Go string. An
// empty name or UTF-8 passes the bytes through with any BOM removed; for
// other encodings a leading UTF-8 or UTF-16 BOM overrides the name.
func Decode(content []byte, encoding string) (string, error) {
	if isUTF8(encoding) {
		return string(bytes.TrimPrefix(content, utf8BOM)), nil
	}

	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrUnknownEncoding, encoding, err)
	}
	if enc == nil {
		return "", fmt.Errorf("%w %q: no decoder", ErrUnknownEncoding, encoding)
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), content)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", encoding, err)
	}
	return string(out), nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}
