package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path     string
		category Category
		language string
		ext      string
	}{
		{"/notes/a.md", Markup, "markdown", "md"},
		{"/notes/README.MARKDOWN", Markup, "markdown", "markdown"},
		{"/src/main.go", Code, "go", "go"},
		{"/src/app.TSX", Code, "tsx", "tsx"},
		{"/etc/app.yml", KeyValue, "yaml", "yml"},
		{"/proj/Cargo.toml", KeyValue, "toml", "toml"},
		{"/proj/Dockerfile", Code, "dockerfile", "dockerfile"},
		{"/proj/.env", KeyValue, "env", ".env"},
		{"/proj/.gitignore", Text, "", ".gitignore"},
		{"/data/notes.txt", Text, "", "txt"},
		{"/pics/cat.jpeg", Image, "", "jpeg"},
		{"/bin/tool.exe", Unsupported, "", "exe"},
		{"/bin/noext", Unsupported, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := Detect(tt.path)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.language, got.Language)
			assert.Equal(t, tt.ext, got.Ext)
		})
	}
}

func TestCategory_StringRoundTrip(t *testing.T) {
	for _, c := range []Category{Unsupported, Text, Markup, KeyValue, Code, Image} {
		assert.Equal(t, c, ParseCategory(c.String()))
	}
	assert.True(t, Code.Indexable())
	assert.False(t, Image.Indexable())
	assert.False(t, Unsupported.Indexable())
}

func TestNormalizeExt(t *testing.T) {
	assert.Equal(t, "md", NormalizeExt(".MD"))
	assert.Equal(t, "go", NormalizeExt(" go "))
}
