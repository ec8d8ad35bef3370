// Package capabilities holds the concrete capability variants a manifest can
// declare: static data, Lua scripts, remote HTTP endpoints, and LLM
// prompts. Each variant lives in its own subpackage and satisfies
// ports.Capability.
package capabilities
