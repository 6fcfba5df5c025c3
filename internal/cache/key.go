package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// MakeCacheKey derives the cache key for a call of method with req.
//
// The key is "<method>:<sha256 hex>" where the digest covers the method
// name and the deterministic encoding of req: protobuf messages use
// deterministic wire marshaling, other values are JSON encoded (map keys
// sorted). Equal requests always yield equal keys, and the method prefix
// lets InvalidatePattern(method+":*") drop every variant of one method.
func MakeCacheKey(method string, req any) (string, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return "", fmt.Errorf("cache key for %s: %w", method, err)
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write(payload)

	return method + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// MethodPattern returns the invalidation pattern matching every key
// MakeCacheKey produces for method.
func MethodPattern(method string) string {
	return method + ":*"
}

func encodeRequest(req any) ([]byte, error) {
	switch r := req.(type) {
	case nil:
		return nil, nil
	case proto.Message:
		return proto.MarshalOptions{Deterministic: true}.Marshal(r)
	case []byte:
		return r, nil
	case string:
		return []byte(r), nil
	default:
		return json.Marshal(r)
	}
}
