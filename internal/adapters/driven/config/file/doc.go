// Package file keeps user state as plain files under ~/.kb so it can be
// inspected and edited by hand. config.toml holds settings and the
// prompts directory holds one text file per system prompt.
package file
