package domain

import "encoding/json"

// DefaultVersion is the version a call carries when the field is absent.
const DefaultVersion = "v1"

// CapabilityCall is one requested invocation within a plan.
//
// An empty Version means "latest". When decoding JSON, an absent version
// field yields DefaultVersion while an explicit empty string is kept.
type CapabilityCall struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Order      int             `json:"order"`
	DependsOn  []string        `json:"depends_on,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
}

// UnmarshalJSON applies DefaultVersion when the version field is missing.
func (c *CapabilityCall) UnmarshalJSON(data []byte) error {
	type alias CapabilityCall
	decoded := alias{Version: DefaultVersion}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = CapabilityCall(decoded)
	return nil
}

// QueryPlan is the ordered collection of calls to execute. The engine only
// reads it.
type QueryPlan struct {
	Calls []CapabilityCall `json:"calls"`
}
