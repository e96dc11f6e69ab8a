package migration

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// WorkDescriptor is one panel's pending work for one method queue.
type WorkDescriptor struct {
	PanelName string `json:"panel_name"`
	StartUID  *int64 `json:"start_uid,omitempty"`
	EndUID    *int64 `json:"end_uid,omitempty"`
}

// NewWorkDescriptor builds a descriptor for panel without uid bounds.
func NewWorkDescriptor(panel string) WorkDescriptor {
	return WorkDescriptor{PanelName: panel}
}

// WithRange returns a copy of d bounded to [start, end].
func (d WorkDescriptor) WithRange(start, end int64) WorkDescriptor {
	d.StartUID = &start
	d.EndUID = &end
	return d
}

// Validate checks the descriptor invariants.
func (d WorkDescriptor) Validate() error {
	if strings.TrimSpace(d.PanelName) == "" {
		return fmt.Errorf("%w: panel_name is required", ErrMalformedDescriptor)
	}
	if strings.ContainsFunc(d.PanelName, unicode.IsSpace) {
		return fmt.Errorf("%w: panel_name %q contains whitespace", ErrMalformedDescriptor, d.PanelName)
	}
	if d.StartUID != nil && d.EndUID != nil && *d.StartUID > *d.EndUID {
		return fmt.Errorf("%w: start_uid %d exceeds end_uid %d", ErrMalformedDescriptor, *d.StartUID, *d.EndUID)
	}
	return nil
}

// EncodeDescriptor serializes d for a work queue.
func EncodeDescriptor(d WorkDescriptor) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding descriptor: %w", err)
	}
	return string(b), nil
}

// DecodeDescriptor parses a queued descriptor. Besides JSON it accepts the
// single-quoted dict literal form ({'panel_name': 'acme', 'end_uid': None}) pushed
// by earlier tooling.
func DecodeDescriptor(raw string) (WorkDescriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return WorkDescriptor{}, fmt.Errorf("%w: empty payload", ErrMalformedDescriptor)
	}

	var d WorkDescriptor
	err := json.Unmarshal([]byte(raw), &d)
	if err != nil {
		converted, convErr := legacyLiteralToJSON(raw)
		if convErr != nil {
			return WorkDescriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
		}
		if err := json.Unmarshal([]byte(converted), &d); err != nil {
			return WorkDescriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
		}
	}

	if err := d.Validate(); err != nil {
		return WorkDescriptor{}, err
	}
	return d, nil
}

// legacyLiteralToJSON rewrites a flat dict literal into JSON: single-quoted
// strings become double-quoted and None/True/False become null/true/false.
func legacyLiteralToJSON(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"':
			quote := r
			b.WriteByte('"')
			closed := false
			for i++; i < len(runes); i++ {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					i++
					if runes[i] == '\'' {
						b.WriteRune('\'')
					} else {
						b.WriteRune('\\')
						b.WriteRune(runes[i])
					}
					continue
				}
				if c == quote {
					closed = true
					break
				}
				if c == '"' {
					b.WriteString(`\"`)
					continue
				}
				b.WriteRune(c)
			}
			if !closed {
				return "", fmt.Errorf("unterminated string literal")
			}
			b.WriteByte('"')
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			switch word := string(runes[i:j]); word {
			case "None":
				b.WriteString("null")
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			default:
				return "", fmt.Errorf("unexpected identifier %q", word)
			}
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}
