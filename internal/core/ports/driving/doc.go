// Package driving lists what the CLI, TUI, HTTP API and MCP server may ask
// of the core. internal/core/services implements every interface here.
package driving
