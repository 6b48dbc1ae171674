package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONList decodes a list of T element by element. The input is either a
// bare array or, when key is non-empty, an object whose key field holds the
// array. Other fields of the envelope are skipped. Empty input yields no items.
func DecodeJSONList[T any](ctx context.Context, r io.Reader, key string) ([]T, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "json: read opening token")
	}

	if delim, ok := tok.(json.Delim); ok && delim == '{' && key != "" {
		if err := seekField(decoder, key); err != nil {
			return nil, err
		}
		if tok, err = decoder.Token(); err != nil {
			return nil, eris.Wrapf(err, "json: read %q value", key)
		}
	}

	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return nil, eris.Errorf("json: expected '[', got %v", tok)
	}

	var items []T
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "json: context cancelled")
		}
		var item T
		if err := decoder.Decode(&item); err != nil {
			return nil, eris.Wrapf(err, "json: decode element %d", len(items))
		}
		items = append(items, item)
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "json: read closing token")
	}
	return items, nil
}

// seekField advances the decoder inside an object until the value of key is next.
func seekField(decoder *json.Decoder, key string) error {
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return eris.Wrap(err, "json: read field name")
		}
		if name, _ := tok.(string); name == key {
			return nil
		}
		var skip json.RawMessage
		if err := decoder.Decode(&skip); err != nil {
			return eris.Wrap(err, "json: skip field")
		}
	}
	return eris.Errorf("json: field %q not found", key)
}

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}
