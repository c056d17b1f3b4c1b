// Package driving declares the operations the CLI and the MCP server call.
// internal/core/services implements them.
package driving
