package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator instances cache struct metadata and are safe
// for concurrent use.
var validate = validator.New()

// PingRequest asks for a latency echo. TS is the client's send time in unix
// milliseconds.
type PingRequest struct {
	Version string `json:"version" validate:"required,eq=v1"`
	TS      int64  `json:"ts" validate:"required,gt=0"`
}

// PingResponse echoes the client timestamp with the observed latency.
type PingResponse struct {
	Pong      bool  `json:"pong"`
	TS        int64 `json:"ts"`
	LatencyMs int64 `json:"latencyMs"`
}

// StatsRequest asks for one metrics snapshot.
type StatsRequest struct {
	Version string `json:"version" validate:"required,eq=v1"`
}

// StatsSubscribeRequest starts periodic snapshot pushes. A nil IntervalMs
// selects the default cadence.
type StatsSubscribeRequest struct {
	Version    string `json:"version" validate:"required,eq=v1"`
	IntervalMs *int64 `json:"intervalMs,omitempty" validate:"omitempty,min=1,max=60000"`
}

// DefaultStatsIntervalMs is the subscription cadence when the client does not
// pick one.
const DefaultStatsIntervalMs int64 = 5000

// Interval returns the effective push interval in milliseconds.
func (r *StatsSubscribeRequest) Interval() int64 {
	if r.IntervalMs == nil {
		return DefaultStatsIntervalMs
	}
	return *r.IntervalMs
}

// DecodeAndValidate unmarshals a payload into dst and runs its declared
// validation rules. The returned error message is safe to echo to clients.
func DecodeAndValidate(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed payload")
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %v", err)
	}
	return nil
}
