// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme) compliant
// serialization for deterministic hashing of Theatre artifacts.
//
// Every hash in the engine (commitment hash, dataset hash, bundle hash) is
// computed over the output of this package. Two structurally equal values must
// always canonicalize to identical bytes, regardless of map insertion order.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Key features:
// 1. Map keys are sorted lexicographically by UTF-8 bytes at every level.
// 2. HTML escaping is DISABLED (unlike standard json.Marshal).
// 3. Numbers are normalized: integral floats encode without a fraction (1.0 -> 1).
// 4. NaN and Infinity are rejected with an error, never silently encoded.
// 5. null values are preserved, never dropped.
func JCS(v interface{}) ([]byte, error) {
	if err := rejectNonFinite(v); err != nil {
		return nil, err
	}

	// Marshal to intermediate JSON (standard), then decode to interface{} with
	// UseNumber, then recursively re-marshal. This respects json struct tags
	// while overriding key order and number formatting.
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("jcs: intermediate decode failed: %w", err)
	}

	return marshalRecursive(generic)
}

// Transform canonicalizes an already-serialized JSON document.
// Used for externally supplied artifacts (template files, raw episode payloads)
// where the bytes exist before this engine ever parses them.
func Transform(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns a lowercase hex string.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// rejectNonFinite walks native Go values looking for NaN/Inf floats.
// encoding/json also rejects these, but with an opaque error; we surface
// a precise one because a non-finite score silently breaks hash stability.
func rejectNonFinite(v interface{}) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("jcs: non-finite number %v is not JSON-representable", t)
		}
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("jcs: non-finite number %v is not JSON-representable", f)
		}
	case map[string]interface{}:
		for k, elem := range t {
			if err := rejectNonFinite(elem); err != nil {
				return fmt.Errorf("jcs: key %q: %w", k, err)
			}
		}
	case []interface{}:
		for i, elem := range t {
			if err := rejectNonFinite(elem); err != nil {
				return fmt.Errorf("jcs: index %d: %w", i, err)
			}
		}
	}
	return nil
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // CRITICAL: RFC 8785 requires no HTML escaping

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return normalizeNumber(t)
	case string:
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		// json.Encoder adds a newline, we must trim it
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.Reset()
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		buf.Reset()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalRecursive(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("jcs: type %T is not JSON-representable", v)
	}
}

// normalizeNumber strips an insignificant fraction so that 1.0 and 1 hash
// identically. Exponent forms pass through json.Number untouched only when
// they carry a meaningful fraction.
func normalizeNumber(n json.Number) ([]byte, error) {
	s := n.String()
	if i, err := n.Int64(); err == nil {
		return []byte(fmt.Sprintf("%d", i)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("jcs: invalid number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("jcs: non-finite number %q is not JSON-representable", s)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return []byte(fmt.Sprintf("%d", int64(f))), nil
	}
	return []byte(s), nil
}
