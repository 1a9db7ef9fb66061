// Package configs provides the embedded configuration template for searchgate.
//
// The template is embedded at build time so `searchgate config init` works
// from any installed binary. Edit searchgate.example.yaml and rebuild to
// change it.
package configs

import _ "embed"

// ExampleConfig is the commented configuration template written by
// `searchgate config init`. Every active value equals the built-in default.
//
//go:embed searchgate.example.yaml
var ExampleConfig string
