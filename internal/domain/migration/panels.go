package migration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParsePanelList reads one panel name per line. Blank lines and lines
// starting with '#' are skipped, as are repeated names.
func ParsePanelList(r io.Reader) ([]string, error) {
	var (
		panels []string
		seen   = make(map[string]struct{})
	)
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if strings.ContainsFunc(name, func(r rune) bool { return r == ' ' || r == '\t' }) {
			return nil, fmt.Errorf("line %d: panel name %q contains whitespace", line, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		panels = append(panels, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading panel list: %w", err)
	}
	return panels, nil
}

// ReadPanelFile opens path and parses it with ParsePanelList.
func ReadPanelFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening panel file: %w", err)
	}
	defer f.Close()
	return ParsePanelList(f)
}
