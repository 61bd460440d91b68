// Package serialize implements C1: the two-way mapping between a
// JsonDoc and its canonical byte form (spec §4.1, §6).
//
// Canonical JSON must be byte-identical across runs and platforms for
// semantically identical input, because blob OIDs are a function of
// these bytes (spec §8). internal/config's yaml.v3 usage is the
// teacher's only direct precedent for a serialization library; JSON
// canonicalization itself has no counterpart in the kept teacher
// packages and is built fresh on encoding/json, with key-sorting done
// by hand since encoding/json does not expose a stable-order encoder
// for map[string]interface{}.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gitddb/gitddb/internal/types"
)

const (
	// JSONExt is the file extension for the canonical JSON format.
	JSONExt = ".json"
	indent  = "  "
)

// MarshalCanonicalJSON renders doc as canonical JSON: UTF-8, object
// keys sorted recursively (ASCII order), two-space indent, trailing
// newline.
func MarshalCanonicalJSON(doc types.JsonDoc) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, map[string]interface{}(doc), 0); err != nil {
		return nil, fmt.Errorf("serialize: canonical json: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// UnmarshalCanonicalJSON parses canonical (or any valid) JSON bytes
// into a JsonDoc.
func UnmarshalCanonicalJSON(b []byte) (types.JsonDoc, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("serialize: parse json: %w", err)
	}
	return types.JsonDoc(raw), nil
}

func writeValue(buf *bytes.Buffer, v interface{}, depth int) error {
	switch val := v.(type) {
	case map[string]interface{}:
		return writeObject(buf, val, depth)
	case []interface{}:
		return writeArray(buf, val, depth)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

func writeObject(buf *bytes.Buffer, m map[string]interface{}, depth int) error {
	if len(m) == 0 {
		buf.WriteString("{}")
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	childDepth := depth + 1
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		writeIndent(buf, childDepth)
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteString(": ")
		if err := writeValue(buf, m[k], childDepth); err != nil {
			return err
		}
	}
	buf.WriteByte('\n')
	writeIndent(buf, depth)
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []interface{}, depth int) error {
	if len(arr) == 0 {
		buf.WriteString("[]")
		return nil
	}
	buf.WriteByte('[')
	childDepth := depth + 1
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		writeIndent(buf, childDepth)
		if err := writeValue(buf, v, childDepth); err != nil {
			return err
		}
	}
	buf.WriteByte('\n')
	writeIndent(buf, depth)
	buf.WriteByte(']')
	return nil
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString(indent)
	}
}
