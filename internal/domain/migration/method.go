// Package migration defines the vocabulary of the panel migration: roles,
// methods, work descriptors, status records and Kafka offset snapshots.
package migration

import (
	"fmt"
	"strings"
)

// Role identifies which half of the pipeline a worker subprocess belongs to.
type Role string

const (
	// RoleProducer reads from the source topology and publishes to Kafka.
	RoleProducer Role = "producer"
	// RoleConsumer consumes from Kafka and writes to the target topology.
	RoleConsumer Role = "consumer"
)

// Roles lists every role in a stable order.
func Roles() []Role { return []Role{RoleProducer, RoleConsumer} }

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleProducer, RoleConsumer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// StatusKey returns the status hash key for a panel, e.g. "consumer_acme".
func (r Role) StatusKey(panel string) string { return string(r) + "_" + panel }

// StatusKeyPattern returns the SCAN pattern matching every status key of r.
func (r Role) StatusKeyPattern() string { return string(r) + "_*" }

// PanelFromStatusKey strips the role prefix from a status key.
func (r Role) PanelFromStatusKey(key string) (string, bool) {
	prefix := string(r) + "_"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(key, prefix), true
}

// Method names a migration transform. Producer methods read a data family
// from the source; each has exactly one consumer method writing it out.
type Method string

const (
	ReadUserAttributes                     Method = "readUserAttributes"
	ReadAnonUserAttributes                 Method = "readAnonUserAttributes"
	ReadDisableUserAttributes              Method = "readDisableUserAttributes"
	ReadEngagementEventsWithMetaKey        Method = "readEngagementEventsWithMetaKey"
	ReadAnonEngagementEventsWithMetaKey    Method = "readAnonEngagementEventsWithMetaKey"
	ReadDisableEngagementEventsWithMetaKey Method = "readDisableEngagementEventsWithMetaKey"
	ReadUserDetailsWithMetaKey             Method = "readUserDetailsWithMetaKey"
	ReadAnonUserDetailsWithMetaKey         Method = "readAnonUserDetailsWithMetaKey"
	ReadDisableUserDetailsWithMetaKey      Method = "readDisableUserDetailsWithMetaKey"

	WriteUserAttributes                              Method = "writeUserAttributes"
	WriteAnonUserAttributes                          Method = "writeAnonUserAttributes"
	WriteDisableUserAttributes                       Method = "writeDisableUserAttributes"
	WriteEngagementEventsToUserEvents                Method = "writeEngagementEventsToUserEvents"
	WriteAnonEngagementEventsToAnonUserEvents        Method = "writeAnonEngagementEventsToAnonUserEvents"
	WriteDisableEngagementEventsToDisabledUserEvents Method = "writeDisableEngagementEventsToDisabledUserEvents"
	WriteUserDetailsToUserEvents                     Method = "writeUserDetailsToUserEvents"
	WriteAnonUserDetailsToAnonUserEvents             Method = "writeAnonUserDetailsToAnonUserEvents"
	WriteDisableUserDetailsToDisableUserEvents       Method = "writeDisableUserDetailsToDisableUserEvents"
)

// methodPairs is the producer/consumer correspondence table. Order defines the
// default launch order.
var methodPairs = [...]struct{ producer, consumer Method }{
	{ReadUserAttributes, WriteUserAttributes},
	{ReadAnonUserAttributes, WriteAnonUserAttributes},
	{ReadDisableUserAttributes, WriteDisableUserAttributes},
	{ReadEngagementEventsWithMetaKey, WriteEngagementEventsToUserEvents},
	{ReadAnonEngagementEventsWithMetaKey, WriteAnonEngagementEventsToAnonUserEvents},
	{ReadDisableEngagementEventsWithMetaKey, WriteDisableEngagementEventsToDisabledUserEvents},
	{ReadUserDetailsWithMetaKey, WriteUserDetailsToUserEvents},
	{ReadAnonUserDetailsWithMetaKey, WriteAnonUserDetailsToAnonUserEvents},
	{ReadDisableUserDetailsWithMetaKey, WriteDisableUserDetailsToDisableUserEvents},
}

type methodInfo struct {
	role        Role
	counterpart Method
}

var catalogue = buildCatalogue()

// buildCatalogue indexes methodPairs in both directions. A duplicated name is
// a programming error and panics at package init.
func buildCatalogue() map[Method]methodInfo {
	c := make(map[Method]methodInfo, len(methodPairs)*2)
	add := func(m Method, info methodInfo) {
		if _, dup := c[m]; dup {
			panic(fmt.Sprintf("migration: method %q registered twice", m))
		}
		c[m] = info
	}
	for _, p := range methodPairs {
		add(p.producer, methodInfo{role: RoleProducer, counterpart: p.consumer})
		add(p.consumer, methodInfo{role: RoleConsumer, counterpart: p.producer})
	}
	return c
}

// ParseMethod validates a method name against the catalogue.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.TrimSpace(s))
	if _, ok := catalogue[m]; !ok {
		return "", ErrUnknownMethod{Method: s}
	}
	return m, nil
}

// ParseMethods parses a comma-separated method list for role. An empty list
// selects every method of the role. Duplicates are collapsed.
func ParseMethods(role Role, csv string) ([]Method, error) {
	if strings.TrimSpace(csv) == "" {
		return Methods(role), nil
	}

	seen := make(map[Method]struct{})
	var out []Method
	for _, name := range strings.Split(csv, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		m, err := ParseMethod(name)
		if err != nil {
			return nil, err
		}
		if m.Role() != role {
			return nil, ErrRoleMismatch{Method: m, Want: role}
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no methods in %q", csv)
	}
	return out, nil
}

// Methods returns every method of role in catalogue order.
func Methods(role Role) []Method {
	out := make([]Method, 0, len(methodPairs))
	for _, p := range methodPairs {
		if role == RoleProducer {
			out = append(out, p.producer)
		} else {
			out = append(out, p.consumer)
		}
	}
	return out
}

// Role reports which side of the pipeline m runs on. Unknown methods report
// an empty role.
func (m Method) Role() Role { return catalogue[m].role }

// Counterpart returns the method on the other side of the pipeline.
func (m Method) Counterpart() (Method, error) {
	info, ok := catalogue[m]
	if !ok {
		return "", ErrUnknownMethod{Method: string(m)}
	}
	return info.counterpart, nil
}

// QueueName returns the work queue key for m.
func (m Method) QueueName() string { return string(m) + "_queue" }

func (m Method) String() string { return string(m) }
