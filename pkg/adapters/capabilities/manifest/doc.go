// Package manifest loads the YAML capability manifest and registers the
// declared capabilities.
//
// Example:
//
//	capabilities:
//	  - name: users
//	    version: v2
//	    active: true
//	    kind: lua
//	    config:
//	      file: scripts/users.lua
//	  - name: billing
//	    kind: http
//	    config:
//	      url: ${BILLING_URL}/query
//	      timeout: 5s
package manifest
