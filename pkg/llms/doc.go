// Package llms provides unified support for interacting with chat Language Models
// from different providers.
//
// The `llms.go` file contains the types and interfaces for interacting with different LLMs.
// The `options.go` file provides various options and functions to configure the calls.
//
// Each subpackage contains a provider-specific implementation of the Model interface.
package llms
