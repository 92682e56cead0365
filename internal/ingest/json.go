package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// JSONOpener handles .json files holding an array of objects.
type JSONOpener struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONOpener) CanHandle(path string) bool {
	return hasExt(path, ".json")
}

// Open decodes the whole array. Columns are the object keys in first-seen
// order across all elements.
func (j *JSONOpener) Open(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return NewSliceSource(nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("invalid JSON in %s: expected an array of objects", path)
	}

	var objects []orderedObject
	for dec.More() {
		obj, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON in %s (element %d): %w", path, len(objects), err)
		}
		objects = append(objects, obj)
	}
	return objectSource(objects), nil
}

// JSONLOpener handles newline-delimited JSON (.jsonl, .ndjson).
type JSONLOpener struct{}

// CanHandle returns true for JSON Lines file extensions.
func (j *JSONLOpener) CanHandle(path string) bool {
	return hasExt(path, ".jsonl", ".ndjson")
}

// Open decodes one object per non-blank line.
func (j *JSONLOpener) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var objects []orderedObject
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		obj, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON in %s (line %d): %w", path, lineNum, err)
		}
		objects = append(objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return objectSource(objects), nil
}

type orderedObject struct {
	keys   []string
	values map[string]any
}

// decodeObject reads one JSON object, keeping key order.
func decodeObject(dec *json.Decoder) (orderedObject, error) {
	tok, err := dec.Token()
	if err != nil {
		return orderedObject{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return orderedObject{}, fmt.Errorf("expected an object")
	}
	obj := orderedObject{values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return orderedObject{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return orderedObject{}, fmt.Errorf("expected an object key")
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return orderedObject{}, err
		}
		if _, seen := obj.values[key]; !seen {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = jsonValue(v)
	}
	if _, err := dec.Token(); err != nil {
		return orderedObject{}, err
	}
	return obj, nil
}

// jsonValue turns json.Number into int64 or float64. Nested values are kept
// as decoded.
func jsonValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// objectSource lays out objects as rows over the union of their keys.
func objectSource(objects []orderedObject) *SliceSource {
	var columns []string
	index := map[string]int{}
	for _, obj := range objects {
		for _, k := range obj.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(columns)
				columns = append(columns, k)
			}
		}
	}
	rows := make([][]any, len(objects))
	for i, obj := range objects {
		row := make([]any, len(columns))
		for k, v := range obj.values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			row[index[k]] = v
		}
		rows[i] = row
	}
	return NewSliceSource(columns, rows)
}
