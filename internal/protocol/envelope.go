// Package protocol defines the websocket wire format: the event envelope and
// the validated payload shape of every event.
package protocol

import "encoding/json"

// Version is the protocol version every client request must carry.
const Version = "v1"

// Built-in event names. Responses reuse the request's event name; payload
// shapes differ per direction.
const (
	EventWelcome        = "system:welcome"
	EventError          = "system:error"
	EventPing           = "system:ping"
	EventStatsGet       = "stats:get"
	EventStatsSubscribe = "stats:subscribe"
)

// DeprecatedEvents are the domain CRUD events the protocol used to forward.
// They now answer with a migration hint pointing at the HTTP API.
var DeprecatedEvents = []string{
	"projects:create", "projects:update", "projects:delete",
	"experiences:create", "experiences:update", "experiences:delete",
	"technologies:create", "technologies:update", "technologies:delete",
	"messages:create",
	"resumes:create", "resumes:delete",
	"uploads:sign",
}

// Envelope is the wire unit for every frame in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is the uniform failure response. Message stays terse and
// non-sensitive; Docs optionally points at the HTTP API.
type ErrorPayload struct {
	Message string `json:"message"`
	Docs    string `json:"docs,omitempty"`
}

// WelcomePayload is pushed once per connection right after the handshake.
type WelcomePayload struct {
	Version string `json:"version"`
	Message string `json:"message"`
}
