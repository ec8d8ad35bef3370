// Package ports declares the interfaces between the orchestration engine and
// its adapters.
package ports
