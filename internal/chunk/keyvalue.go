package chunk

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// keyValueBoundaries splits config files at top-level keys or sections.
// Malformed input yields no boundaries, which means a plain window split.
func keyValueBoundaries(content []byte, language string) []boundary {
	switch language {
	case "yaml":
		return yamlBoundaries(content)
	case "toml":
		return tomlBoundaries(content)
	case "json":
		return jsonBoundaries(content)
	case "ini":
		return sectionBoundaries(content)
	default:
		return nil
	}
}

func yamlBoundaries(content []byte) []boundary {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}

	offsets := lineOffsets(content)
	var out []boundary
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if key.Line < 1 || key.Line > len(offsets) {
			continue
		}
		out = append(out, boundary{offset: offsets[key.Line-1], heading: key.Value})
	}
	return out
}

func tomlBoundaries(content []byte) []boundary {
	var probe map[string]any
	if err := toml.Unmarshal(content, &probe); err != nil {
		return nil
	}
	return headerLineBoundaries(content, "[")
}

func sectionBoundaries(content []byte) []boundary {
	return headerLineBoundaries(content, "[")
}

// headerLineBoundaries marks lines starting with prefix, such as "[table]".
func headerLineBoundaries(content []byte, prefix string) []boundary {
	var out []boundary
	for _, l := range splitLines(content) {
		trimmed := strings.TrimSpace(l.text)
		if strings.HasPrefix(trimmed, prefix) {
			out = append(out, boundary{offset: l.offset, heading: strings.Trim(trimmed, "[] ")})
		}
	}
	return out
}

// jsonBoundaries walks the members of a top-level object.
func jsonBoundaries(content []byte) []boundary {
	dec := json.NewDecoder(bytes.NewReader(content))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	var out []boundary
	for dec.More() {
		before := int(dec.InputOffset())
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil
		}
		out = append(out, boundary{offset: memberStart(content, before), heading: key})
	}
	if _, err := dec.Token(); err != nil {
		return nil
	}
	return out
}

// memberStart moves past the separator after off and back to the line
// start when only indentation precedes the key.
func memberStart(content []byte, off int) int {
	k := off
	for k < len(content) && strings.IndexByte(", \t\r\n", content[k]) >= 0 {
		k++
	}
	ls := lineStart(content, k)
	if ls >= off && len(bytes.TrimSpace(content[ls:k])) == 0 {
		return ls
	}
	return k
}

// lineOffsets returns the starting byte offset of every line.
func lineOffsets(content []byte) []int {
	out := []int{0}
	for i, b := range content {
		if b == '\n' && i+1 < len(content) {
			out = append(out, i+1)
		}
	}
	return out
}
