package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is the lifecycle state a worker subprocess reports.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusKilled    Status = "killed"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusKilled }

// StatusRecord is the JSON value stored under a status hash field. Fields the
// orchestrator does not interpret are carried through unchanged on rewrite.
type StatusRecord struct {
	Status    Status
	PID       int
	TopicName string
	GroupName string
	Env       string

	extra map[string]json.RawMessage
}

var knownStatusFields = map[string]struct{}{
	"status": {}, "pid": {}, "topic_name": {}, "group_name": {}, "env": {},
}

// Extra returns a raw field the record carries but does not model, such as
// start_time or current_consumer_offset.
func (r StatusRecord) Extra(key string) (json.RawMessage, bool) {
	v, ok := r.extra[key]
	return v, ok
}

// WithStatus returns a copy of r with its status replaced.
func (r StatusRecord) WithStatus(s Status) StatusRecord {
	r.Status = s
	if r.extra != nil {
		cp := make(map[string]json.RawMessage, len(r.extra))
		for k, v := range r.extra {
			cp[k] = v
		}
		r.extra = cp
	}
	return r
}

// ConsumerGroup returns the Kafka consumer group a consumer reports, falling
// back to the "<topic>_grp" naming convention.
func (r StatusRecord) ConsumerGroup() string {
	if r.GroupName != "" {
		return r.GroupName
	}
	if r.TopicName != "" {
		return r.TopicName + "_grp"
	}
	return ""
}

func (r StatusRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.extra)+5)
	for k, v := range r.extra {
		out[k] = v
	}
	out["status"] = r.Status
	out["pid"] = r.PID
	if r.TopicName != "" {
		out["topic_name"] = r.TopicName
	}
	if r.GroupName != "" {
		out["group_name"] = r.GroupName
	}
	if r.Env != "" {
		out["env"] = r.Env
	}
	return json.Marshal(out)
}

func (r *StatusRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var rec StatusRecord
	if err := decodeString(fields, "status", (*string)(&rec.Status)); err != nil {
		return err
	}
	if err := decodeString(fields, "topic_name", &rec.TopicName); err != nil {
		return err
	}
	if err := decodeString(fields, "group_name", &rec.GroupName); err != nil {
		return err
	}
	if err := decodeString(fields, "env", &rec.Env); err != nil {
		return err
	}
	if raw, ok := fields["pid"]; ok {
		pid, err := decodePID(raw)
		if err != nil {
			return err
		}
		rec.PID = pid
	}

	for k, v := range fields {
		if _, known := knownStatusFields[k]; known {
			continue
		}
		if rec.extra == nil {
			rec.extra = make(map[string]json.RawMessage)
		}
		rec.extra[k] = v
	}

	*r = rec
	return nil
}

func decodeString(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// decodePID accepts a number or a numeric string.
func decodePID(raw json.RawMessage) (int, error) {
	if bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("field pid: %w", err)
		}
		return int(v), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("field pid: %w", err)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("field pid: %w", err)
	}
	return v, nil
}

// DecodeStatusRecord parses a status hash value. Producers and consumers
// serialize differently: a JSON list holding one record is equivalent to the
// bare record.
func DecodeStatusRecord(raw []byte) (StatusRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return StatusRecord{}, fmt.Errorf("%w: empty payload", ErrMalformedStatus)
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return StatusRecord{}, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
		}
		if len(items) == 0 {
			return StatusRecord{}, fmt.Errorf("%w: empty list", ErrMalformedStatus)
		}
		raw = items[0]
	}

	var rec StatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StatusRecord{}, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	return rec, nil
}
