package chunk

import (
	"context"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
)

// codeBoundaries returns the start of every top-level declaration, with
// leading comments kept attached. Unsupported languages and parse failures
// return nil.
func (c *Chunker) codeBoundaries(ctx context.Context, content []byte, language string) []boundary {
	cfg, lang, ok := c.registry.Get(language)
	if !ok {
		return nil
	}

	// Parsers are not safe for concurrent use; one per call.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		slog.Debug("chunk_parse_failed", slog.String("language", language), slog.Any("error", err))
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	var out []boundary
	attached := false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if node == nil {
			continue
		}
		if cfg.isComment(node.Type()) {
			if !attached {
				out = append(out, boundary{offset: lineStart(content, int(node.StartByte()))})
				attached = true
			}
			continue
		}
		name := declName(cfg, node, content)
		if attached {
			if len(out) > 0 && out[len(out)-1].heading == "" {
				out[len(out)-1].heading = name
			}
			attached = false
			continue
		}
		out = append(out, boundary{offset: lineStart(content, int(node.StartByte())), heading: name})
	}
	return out
}

// declName finds a declaration's identifier, looking through wrappers and
// Go-style spec lists.
func declName(cfg *LanguageConfig, node *sitter.Node, content []byte) string {
	if field, ok := cfg.WrapperTypes[node.Type()]; ok {
		if inner := node.ChildByFieldName(field); inner != nil {
			node = inner
		}
	}
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(content)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "type_spec", "const_spec", "var_spec", "variable_declarator", "type_alias_declaration":
			if name := child.ChildByFieldName("name"); name != nil {
				return name.Content(content)
			}
		}
	}
	return ""
}
