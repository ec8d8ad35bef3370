// Package registry maps capability names and versions to executable
// capabilities.
//
// Resolution with an empty version returns, in order of preference:
//   - The version marked active for the name
//   - The highest semantic version registered
//   - The most recently registered version
package registry
