package store

import (
	"fmt"
	"strings"
)

// TableName maps a container name to its rows table. Lowercase ASCII
// letters (except x and y) and digits are kept; every other rune is
// escaped as x+4 hex digits, or y+6 hex digits above U+FFFF. The mapping
// is injective, and escaped names never contain '_', so the "_files" and
// "_fts" suffixes cannot collide with another container.
func TableName(container string) string {
	var b strings.Builder
	b.WriteString("c_")
	for _, r := range container {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z' && r != 'x' && r != 'y':
			b.WriteRune(r)
		case r <= 0xFFFF:
			fmt.Fprintf(&b, "x%04x", r)
		default:
			fmt.Fprintf(&b, "y%06x", r)
		}
	}
	return b.String()
}

type tables struct {
	rows  string
	files string
	fts   string
}

func tablesFor(container string) tables {
	base := TableName(container)
	return tables{rows: base, files: base + "_files", fts: base + "_fts"}
}

// quote returns a double-quoted SQL identifier. Table names only contain
// [a-z0-9_] so no escaping is needed.
func quote(ident string) string {
	return `"` + ident + `"`
}
