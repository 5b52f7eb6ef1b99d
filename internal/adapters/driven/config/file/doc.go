// Package file provides the file-based configuration adapter.
//
// Settings are read from a TOML file, then overridden by environment
// variables and by a .env file next to it.
package file
