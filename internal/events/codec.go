// Package events encodes observations for the pub/sub topic.
//
// The payload is a JSON object with the flattened observation fields and
// explicit nulls for missing values. Older producers wrote bare NaN/nan
// tokens instead of null; Decode rewrites those before parsing.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/guregu/null"

	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// DecodeError reports a payload that could not be turned into an observation.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const excerptLen = 120

// Encode serializes one observation.
func Encode(o models.Observation) ([]byte, error) {
	return json.Marshal(o)
}

// Decode parses one event payload.
func Decode(payload []byte) (models.Observation, error) {
	var o models.Observation
	clean := rewriteNaN(payload)

	dec := json.NewDecoder(bytes.NewReader(clean))
	if err := dec.Decode(&o); err != nil {
		return models.Observation{}, newDecodeError(payload, err)
	}
	if dec.More() {
		return models.Observation{}, newDecodeError(payload, fmt.Errorf("trailing data after object"))
	}
	if o.SiteID <= 0 {
		return models.Observation{}, newDecodeError(payload, fmt.Errorf("missing Site_Id"))
	}
	// quoted "NaN"/"Inf" strings parse as floats; they mean missing too
	if o.Value.Valid && (math.IsNaN(o.Value.Float64) || math.IsInf(o.Value.Float64, 0)) {
		o.Value = null.Float{}
	}
	return o, nil
}

func newDecodeError(payload []byte, err error) *DecodeError {
	s := string(payload)
	if len(s) > excerptLen {
		s = s[:excerptLen] + "..."
	}
	return &DecodeError{Payload: s, Err: err}
}

// rewriteNaN replaces bare nan tokens (any case) outside string literals
// with null. String contents are never touched.
func rewriteNaN(in []byte) []byte {
	if !bytes.Contains(bytes.ToLower(in), []byte("nan")) {
		return in
	}
	out := make([]byte, 0, len(in)+8)
	inString, escaped := false, false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if isLetter(c) {
			j := i
			for j < len(in) && isLetter(in[j]) {
				j++
			}
			word := in[i:j]
			if bytes.EqualFold(word, []byte("nan")) {
				out = append(out, "null"...)
			} else {
				out = append(out, word...)
			}
			i = j - 1
			continue
		}
		out = append(out, c)
	}
	return out
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
