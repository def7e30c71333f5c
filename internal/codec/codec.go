// Package codec converts account keys and transaction values between their
// raw byte form and the text form used on the command line and over HTTP.
package codec

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseBytes decodes s as 0x-prefixed hex when it carries the prefix and
// takes it verbatim otherwise
func ParseBytes(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.Decode("0x" + s[2:])
	}
	return []byte(s), nil
}

// FormatBytes renders b as 0x-prefixed hex
func FormatBytes(b []byte) string {
	return hexutil.Encode(b)
}

// HexList converts raw byte slices into values that marshal as 0x hex
func HexList(items [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
