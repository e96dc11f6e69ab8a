package launcher

import (
	"strconv"

	"github.com/ahrav/mongoremodel/internal/domain/migration"
)

// CommandBuilder turns a work descriptor into the migration binary's argv.
//
//	producer: <binary> <method> <panel> [start_uid [end_uid]]
//	consumer: <binary> <method> <panel>
//	consumer with a custom property file:
//	          <custom_binary> <method> <panel> <property_file>
type CommandBuilder struct {
	Binary             string
	CustomBinary       string
	CustomPropertyFile string
}

// Build returns the argv for running m against d.
func (b CommandBuilder) Build(m migration.Method, d migration.WorkDescriptor) []string {
	if m.Role() == migration.RoleConsumer {
		if b.CustomPropertyFile != "" {
			bin := b.CustomBinary
			if bin == "" {
				bin = b.Binary
			}
			return []string{bin, m.String(), d.PanelName, b.CustomPropertyFile}
		}
		return []string{b.Binary, m.String(), d.PanelName}
	}

	argv := []string{b.Binary, m.String(), d.PanelName}
	switch {
	case d.StartUID != nil:
		argv = append(argv, strconv.FormatInt(*d.StartUID, 10))
		if d.EndUID != nil {
			argv = append(argv, strconv.FormatInt(*d.EndUID, 10))
		}
	case d.EndUID != nil:
		// The binary's bounds are positional; an upper bound needs a lower one.
		argv = append(argv, "1", strconv.FormatInt(*d.EndUID, 10))
	}
	return argv
}
