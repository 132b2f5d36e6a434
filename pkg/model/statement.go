package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FiscalDateKey is the statement field holding the fiscal period end
const FiscalDateKey = "fiscalDateEnding"

// ErrNoFiscalDate is returned when a statement record lacks a usable
// fiscalDateEnding
var ErrNoFiscalDate = errors.New("statement record has no valid " + FiscalDateKey)

// UnmarshalJSON decodes one report object, keeping field order. Strings are
// kept verbatim, null becomes the empty (missing) value and any other value
// keeps its JSON text.
func (r *StatementRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("statement record: expected object, got %v", tok)
	}

	rec := StatementRecord{Fields: make(map[string]string)}
	haveDate := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("statement record: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("statement record field %q: %w", key, err)
		}
		val, err := rawText(raw)
		if err != nil {
			return fmt.Errorf("statement record field %q: %w", key, err)
		}

		if key == FiscalDateKey {
			ts, err := time.Parse(DateLayout, val)
			if err != nil {
				return fmt.Errorf("%w: %q", ErrNoFiscalDate, val)
			}
			rec.FiscalDateEnding = ts
			haveDate = true
			continue
		}
		if _, dup := rec.Fields[key]; !dup {
			rec.Keys = append(rec.Keys, key)
		}
		rec.Fields[key] = val
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if !haveDate {
		return ErrNoFiscalDate
	}
	*r = rec
	return nil
}

// MarshalJSON writes fiscalDateEnding first, then the fields in Keys order
func (r StatementRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, FiscalDateKey, r.FiscalDateEnding.Format(DateLayout))
	for _, k := range r.Keys {
		buf.WriteByte(',')
		writeField(&buf, k, r.Fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key, value string) {
	k, _ := json.Marshal(key)
	v, _ := json.Marshal(value)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
}

func rawText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return "", nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	default:
		return string(trimmed), nil
	}
}
