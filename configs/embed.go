// Package configs embeds the annotated configuration template written by
// 'amanfind config init'.
package configs

import _ "embed"

// ConfigTemplate is the commented default configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
