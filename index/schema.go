package index

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes
const (
	prefixIndex = "/idx/"
	segCount    = "/c/"
	segValue    = "/v/"
)

// positionWidth is the zero-padded width of an encoded position.
// It fits the largest uint64.
const positionWidth = 20

// ValidateNamespace reports whether ns can be used as an index namespace
func ValidateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	}
	if strings.Contains(ns, "/") {
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidNamespace, ns)
	}
	return nil
}

// encodeKey renders key as lowercase hex.
// The encoding keeps byte order, and since every hex digit sorts above '/'
// no key's records can fall inside another key's range.
func encodeKey(key []byte) string {
	return hex.EncodeToString(key)
}

// CountKeyPrefix returns the prefix shared by all count records of a namespace
// Format: /idx/{namespace}/c/
func CountKeyPrefix(ns string) []byte {
	return []byte(prefixIndex + ns + segCount)
}

// CountKey returns the key of the count record for key
// Format: /idx/{namespace}/c/{hex(key)}
func CountKey(ns string, key []byte) []byte {
	return []byte(prefixIndex + ns + segCount + encodeKey(key))
}

// ValueKeyPrefix returns the prefix shared by all value records of key
// Format: /idx/{namespace}/v/{hex(key)}/
func ValueKeyPrefix(ns string, key []byte) []byte {
	return []byte(prefixIndex + ns + segValue + encodeKey(key) + "/")
}

// ValueKey returns the key of the value record at position
// Format: /idx/{namespace}/v/{hex(key)}/{position}
// Uses zero-padded fixed-width format for proper lexicographic sorting
func ValueKey(ns string, key []byte, position uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%s/%020d", prefixIndex, ns, segValue, encodeKey(key), position))
}

// ParseCountKey extracts the original key from a count record key
func ParseCountKey(ns string, countKey []byte) ([]byte, error) {
	prefix := string(CountKeyPrefix(ns))
	keyStr := string(countKey)
	if !strings.HasPrefix(keyStr, prefix) {
		return nil, fmt.Errorf("invalid count key prefix: %s", keyStr)
	}

	encoded := strings.TrimPrefix(keyStr, prefix)
	if encoded == "" {
		return nil, fmt.Errorf("invalid count key: missing key")
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid count key: %w", err)
	}
	return key, nil
}

// ParseValueKey returns the position encoded in a value record key
func ParseValueKey(valueKey []byte) (uint64, error) {
	keyStr := string(valueKey)
	if len(keyStr) < positionWidth+1 || keyStr[len(keyStr)-positionWidth-1] != '/' {
		return 0, fmt.Errorf("invalid value key format: %s", keyStr)
	}

	position, err := strconv.ParseUint(keyStr[len(keyStr)-positionWidth:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value key position: %w", err)
	}
	return position, nil
}

// EncodeCount encodes a count as 8 big-endian bytes
func EncodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// DecodeCount decodes a count record
func DecodeCount(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: count record length %d", ErrCorruptIndex, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// prefixUpperBound returns the exclusive upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	// Must copy to avoid modifying the prefix slice
	upper := make([]byte, len(prefix), len(prefix)+1)
	copy(upper, prefix)
	return append(upper, 0xff)
}
