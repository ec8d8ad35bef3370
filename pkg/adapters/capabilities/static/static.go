package static

import (
	"context"
	"encoding/json"

	"github.com/aescanero/capo/pkg/domain"
)

// Config configures a static capability
type Config struct {
	Data        json.RawMessage `json:"data"`
	RecordCount *int            `json:"record_count"`
}

// Capability returns the same data on every call
type Capability struct {
	data        json.RawMessage
	recordCount *int
}

// New creates a static capability
func New(cfg Config) *Capability {
	return &Capability{
		data:        cfg.Data,
		recordCount: cfg.RecordCount,
	}
}

// Execute returns the configured data
func (c *Capability) Execute(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error) {
	var count *int
	if c.recordCount != nil {
		n := *c.recordCount
		count = &n
	}
	return domain.SuccessResult(append(json.RawMessage(nil), c.data...), count), nil
}
