// Package mcp serves procedure retrieval, grounded answers, incident
// analysis and the ingested corpus to MCP clients.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

// errToolUnavailable is returned by tools whose service was not provided.
var errToolUnavailable = errors.New("mcp: tool not available in this configuration")
