package sqlmap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrBadValue is returned when a scanned driver value cannot be converted
// to the column's record type.
var ErrBadValue = errors.New("sqlmap: scanned value has unexpected type")

// EncodeUUID stores UUIDs as their canonical string form.
func EncodeUUID(id uuid.UUID) string {
	return id.String()
}

// DecodeUUID reverses EncodeUUID. Drivers may hand strings back as []byte.
func DecodeUUID(v any) (uuid.UUID, error) {
	switch s := v.(type) {
	case string:
		return uuid.Parse(s)
	case []byte:
		return uuid.ParseBytes(s)
	default:
		return uuid.Nil, fmt.Errorf("%w: %T as uuid", ErrBadValue, v)
	}
}

// EncodeBool stores booleans as 0/1 integers for drivers without a native
// boolean type.
func EncodeBool(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// DecodeBool reverses EncodeBool, also accepting native booleans.
func DecodeBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("%w: %T as bool", ErrBadValue, v)
	}
}

// DecodeInt64 converts a scanned integer value.
func DecodeInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %T as int64", ErrBadValue, v)
	}
}

// DecodeString converts a scanned text value.
func DecodeString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("%w: %T as string", ErrBadValue, v)
	}
}
