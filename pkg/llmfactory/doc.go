// Package llmfactory instantiates reasoning engine models from configuration,
// caching created clients by model name.
package llmfactory
