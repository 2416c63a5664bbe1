// Package attribution encodes ERC-8021 builder codes as a calldata suffix.
//
// Layout appended to the call payload:
//
//	[code length: 1 byte][code: ASCII][schema id: 1 byte][marker: 16 bytes]
//
// The trailing marker lets indexers detect the suffix by reading calldata backwards.
package attribution

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	SchemaCanonical byte = 0x00
	markerLength         = 16

	// MaxCodeLength keeps the length prefix below 0x20, so no printable code byte
	// can be read back as a length.
	MaxCodeLength = 31
)

var marker = bytes.Repeat([]byte{0x80, 0x21}, markerLength/2)

// Attribution is a decoded suffix.
type Attribution struct {
	Code       string
	Schema     byte
	PayloadLen int
}

// Suffix encodes code as an ERC-8021 schema 0 suffix.
func Suffix(code string) ([]byte, error) {
	clean := strings.TrimSpace(code)
	if clean == "" {
		return nil, fmt.Errorf("builder code is empty")
	}
	if len(clean) > MaxCodeLength {
		return nil, fmt.Errorf("builder code exceeds %d bytes", MaxCodeLength)
	}
	for i := 0; i < len(clean); i++ {
		if clean[i] < 0x20 || clean[i] > 0x7e {
			return nil, fmt.Errorf("builder code must be printable ASCII")
		}
	}
	out := make([]byte, 0, 1+len(clean)+1+markerLength)
	out = append(out, byte(len(clean)))
	out = append(out, clean...)
	out = append(out, SchemaCanonical)
	out = append(out, marker...)
	return out, nil
}

// Append returns calldata with the encoded suffix for code. The input slice is not modified.
func Append(calldata []byte, code string) ([]byte, error) {
	suffix, err := Suffix(code)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(calldata)+len(suffix))
	out = append(out, calldata...)
	return append(out, suffix...), nil
}

// Decode parses a suffix from the end of data.
func Decode(data []byte) (Attribution, bool) {
	if len(data) < 1+1+markerLength || !bytes.HasSuffix(data, marker) {
		return Attribution{}, false
	}
	schemaAt := len(data) - markerLength - 1
	schema := data[schemaAt]
	// Walk back over the code bytes until the length prefix matches.
	for n := 1; n <= MaxCodeLength && schemaAt-n-1 >= 0; n++ {
		lenAt := schemaAt - n - 1
		if int(data[lenAt]) != n {
			continue
		}
		return Attribution{
			Code:       string(data[lenAt+1 : schemaAt]),
			Schema:     schema,
			PayloadLen: lenAt,
		}, true
	}
	return Attribution{}, false
}

// Strip splits attributed calldata back into the original payload and its attribution.
func Strip(data []byte) ([]byte, Attribution, bool) {
	attr, ok := Decode(data)
	if !ok {
		return data, Attribution{}, false
	}
	return data[:attr.PayloadLen], attr, true
}
