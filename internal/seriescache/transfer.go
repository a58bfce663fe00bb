package seriescache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"seriescache/internal/market"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Format selects the bulk transfer encoding. Both encodings carry the same
// document: one entry object or an array of them.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "mp", "mpk":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown transfer format %q", s)
	}
}

const entrySchemaSource = `{
	"$defs": {
		"numeric": {"type": ["number", "string"], "pattern": "^\\s*-?[0-9]+(\\.[0-9]+)?([eE][-+]?[0-9]+)?\\s*$"},
		"millis": {"type": ["integer", "string"], "minimum": 1, "pattern": "^\\s*[0-9]+\\s*$"}
	},
	"type": "object",
	"required": ["symbol", "interval", "candles"],
	"properties": {
		"symbol": {"type": "string", "minLength": 1},
		"interval": {"type": "string", "minLength": 1},
		"candles": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"timestamp": {"$ref": "#/$defs/millis"},
					"t": {"$ref": "#/$defs/millis"},
					"time": {"$ref": "#/$defs/millis"},
					"openTime": {"$ref": "#/$defs/millis"},
					"open_time": {"$ref": "#/$defs/millis"},
					"open": {"$ref": "#/$defs/numeric"},
					"o": {"$ref": "#/$defs/numeric"},
					"high": {"$ref": "#/$defs/numeric"},
					"h": {"$ref": "#/$defs/numeric"},
					"low": {"$ref": "#/$defs/numeric"},
					"l": {"$ref": "#/$defs/numeric"},
					"close": {"$ref": "#/$defs/numeric"},
					"c": {"$ref": "#/$defs/numeric"},
					"volume": {"$ref": "#/$defs/numeric"},
					"v": {"$ref": "#/$defs/numeric"}
				},
				"allOf": [
					{"anyOf": [{"required": ["timestamp"]}, {"required": ["t"]}, {"required": ["time"]}, {"required": ["openTime"]}, {"required": ["open_time"]}]},
					{"anyOf": [{"required": ["open"]}, {"required": ["o"]}]},
					{"anyOf": [{"required": ["high"]}, {"required": ["h"]}]},
					{"anyOf": [{"required": ["low"]}, {"required": ["l"]}]},
					{"anyOf": [{"required": ["close"]}, {"required": ["c"]}]},
					{"anyOf": [{"required": ["volume"]}, {"required": ["v"]}]}
				]
			}
		},
		"indicators": {
			"type": ["object", "null"],
			"additionalProperties": {
				"type": "array",
				"items": {"type": ["number", "null"]}
			}
		},
		"last_update_ms": {"type": "integer"}
	}
}`

var entrySchema = mustCompileSchema("entry.json", entrySchemaSource)

func mustCompileSchema(url, source string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(source)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(url)
}

type importRecord struct {
	Symbol     string              `json:"symbol"`
	Interval   string              `json:"interval"`
	Candles    []market.Candle     `json:"candles"`
	Indicators market.IndicatorSet `json:"indicators"`
}

// ExportEntry serializes the entry for key. It does not modify the store.
func (c *Cache) ExportEntry(ctx context.Context, key market.Key, format Format) ([]byte, error) {
	store := c.backend()
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	entry, err := c.load(ctx, store, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return encodeTransfer(entry, format)
}

// ExportAll serializes every entry as an array.
func (c *Cache) ExportAll(ctx context.Context, format Format) ([]byte, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return encodeTransfer(entries, format)
}

// ImportEntry validates a single serialized entry and saves it through the
// regular merge path. Malformed input fails with ErrInvalidImportFormat before
// the store is touched.
func (c *Cache) ImportEntry(ctx context.Context, data []byte, format Format) (*Entry, error) {
	records, many, err := c.decodeImport(data, format)
	if err != nil {
		return nil, err
	}
	if many {
		c.metrics.ImportsRejected.Inc()
		return nil, fmt.Errorf("%w: expected a single entry, got an array", ErrInvalidImportFormat)
	}
	return c.importRecord(ctx, records[0])
}

// Import accepts a single entry or an array of entries. The whole payload is
// validated before any entry is saved.
func (c *Cache) Import(ctx context.Context, data []byte, format Format) ([]Entry, error) {
	records, _, err := c.decodeImport(data, format)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		entry, err := c.importRecord(ctx, rec)
		if err != nil {
			return out, err
		}
		out = append(out, *entry)
	}
	return out, nil
}

func (c *Cache) importRecord(ctx context.Context, rec importRecord) (*Entry, error) {
	key := market.NewKey(rec.Symbol, rec.Interval)
	entry, err := c.save(ctx, key, rec.Candles, rec.Indicators)
	if err != nil {
		c.log.Warn("series import not persisted", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}
	c.metrics.Imports.Inc()
	return entry, nil
}

func (c *Cache) decodeImport(data []byte, format Format) ([]importRecord, bool, error) {
	records, many, err := decodeImport(data, format)
	if err != nil {
		c.metrics.ImportsRejected.Inc()
		return nil, false, err
	}
	return records, many, nil
}

func decodeImport(data []byte, format Format) ([]importRecord, bool, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidImportFormat, err)
	}
	var items []any
	many := false
	switch v := doc.(type) {
	case map[string]any:
		items = []any{v}
	case []any:
		if len(v) == 0 {
			return nil, false, fmt.Errorf("%w: empty entry list", ErrInvalidImportFormat)
		}
		items = v
		many = true
	default:
		return nil, false, fmt.Errorf("%w: expected an object or an array", ErrInvalidImportFormat)
	}
	records := make([]importRecord, 0, len(items))
	for i, item := range items {
		if err := entrySchema.Validate(item); err != nil {
			return nil, false, fmt.Errorf("%w: entry %d: %v", ErrInvalidImportFormat, i, err)
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, false, fmt.Errorf("%w: entry %d: %v", ErrInvalidImportFormat, i, err)
		}
		var rec importRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false, fmt.Errorf("%w: entry %d: %v", ErrInvalidImportFormat, i, err)
		}
		if !market.NewKey(rec.Symbol, rec.Interval).Valid() {
			return nil, false, fmt.Errorf("%w: entry %d: blank symbol or interval", ErrInvalidImportFormat, i)
		}
		records = append(records, rec)
	}
	return records, many, nil
}

// decodeDocument returns the payload as plain JSON values (json.Number for
// numbers), whatever the wire format.
func decodeDocument(data []byte, format Format) (any, error) {
	if format == FormatMsgpack {
		var v any
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after document")
	}
	return doc, nil
}

func encodeTransfer(v any, format Format) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if format != FormatMsgpack {
		return raw, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return msgpack.Marshal(doc)
}
