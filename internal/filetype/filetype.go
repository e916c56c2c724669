// Package filetype classifies files into the closed set of categories the
// chunker and orchestrator dispatch on.
package filetype

import (
	"path/filepath"
	"strings"
)

// Category is a closed set of file kinds.
type Category int

const (
	Unsupported Category = iota
	Text
	Markup
	KeyValue
	Code
	Image
)

func (c Category) String() string {
	switch c {
	case Text:
		return "text"
	case Markup:
		return "markup"
	case KeyValue:
		return "key_value"
	case Code:
		return "code"
	case Image:
		return "image"
	default:
		return "unsupported"
	}
}

// ParseCategory is the inverse of String. Unknown names map to Unsupported.
func ParseCategory(s string) Category {
	switch s {
	case "text":
		return Text
	case "markup":
		return Markup
	case "key_value":
		return KeyValue
	case "code":
		return Code
	case "image":
		return Image
	default:
		return Unsupported
	}
}

// Indexable reports whether the category produces text chunks directly.
func (c Category) Indexable() bool {
	return c == Text || c == Markup || c == KeyValue || c == Code
}

// Info is the classification of one path.
type Info struct {
	Category Category
	// Language is set for Code files ("go", "python", "shell", ...).
	Language string
	// Ext is the lowercased extension without the dot, or the base name for
	// extensionless well-known files.
	Ext string
}

type entry struct {
	category Category
	language string
}

var byExt = map[string]entry{
	// Text
	"txt": {Text, ""}, "log": {Text, ""}, "csv": {Text, ""}, "tsv": {Text, ""},
	"tex": {Text, ""}, "bib": {Text, ""},

	// Markup
	"md": {Markup, "markdown"}, "markdown": {Markup, "markdown"},
	"rst": {Markup, "rst"}, "adoc": {Markup, "adoc"},
	"html": {Markup, "html"}, "htm": {Markup, "html"},
	"xml": {Markup, "xml"}, "svg": {Markup, "xml"},

	// KeyValue
	"yaml": {KeyValue, "yaml"}, "yml": {KeyValue, "yaml"},
	"toml": {KeyValue, "toml"}, "json": {KeyValue, "json"},
	"ini": {KeyValue, "ini"}, "cfg": {KeyValue, "ini"}, "conf": {KeyValue, "ini"},
	"env": {KeyValue, "env"}, "properties": {KeyValue, "ini"},

	// Code
	"go": {Code, "go"},
	"py": {Code, "python"},
	"js": {Code, "javascript"}, "jsx": {Code, "javascript"}, "mjs": {Code, "javascript"},
	"ts": {Code, "typescript"}, "tsx": {Code, "tsx"},
	"rs": {Code, "rust"}, "rb": {Code, "ruby"}, "java": {Code, "java"},
	"c": {Code, "c"}, "h": {Code, "c"}, "cpp": {Code, "cpp"}, "hpp": {Code, "cpp"},
	"cs": {Code, "csharp"},
	"css": {Code, "css"}, "scss": {Code, "css"}, "less": {Code, "css"},
	"sql": {Code, "sql"},
	"sh": {Code, "shell"}, "bash": {Code, "shell"},
	"ps1": {Code, "powershell"}, "bat": {Code, "batch"}, "cmd": {Code, "batch"},

	// Image
	"png": {Image, ""}, "jpg": {Image, ""}, "jpeg": {Image, ""}, "gif": {Image, ""},
	"webp": {Image, ""}, "heic": {Image, ""}, "tiff": {Image, ""}, "bmp": {Image, ""},
}

// byName covers extensionless or dot-prefixed well-known files.
var byName = map[string]entry{
	"dockerfile":    {Code, "dockerfile"},
	"makefile":      {Code, "make"},
	".gitignore":    {Text, ""},
	".ignore":       {Text, ""},
	".env":          {KeyValue, "env"},
	".editorconfig": {KeyValue, "ini"},
}

// Detect classifies path by base name, then extension.
func Detect(path string) Info {
	base := strings.ToLower(filepath.Base(path))
	if e, ok := byName[base]; ok {
		return Info{Category: e.category, Language: e.language, Ext: base}
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
	if e, ok := byExt[ext]; ok {
		return Info{Category: e.category, Language: e.language, Ext: ext}
	}
	return Info{Category: Unsupported, Ext: ext}
}

// NormalizeExt lowercases and strips a leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// ExtOf returns the normalized extension of path, matching Info.Ext.
func ExtOf(path string) string {
	return Detect(path).Ext
}
