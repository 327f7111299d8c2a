package signaling

import "encoding/json"

// Event names, client to server.
const (
	EventCreateOrJoin = "create or join"
	EventMessage      = "message"
	EventRawForward   = "send_to_server_raw"
	EventTranslate    = "translate"
	EventIPAddr       = "ipaddr"
	EventBye          = "bye"
)

// Event names, server to client.
const (
	EventCreated          = "created"
	EventJoin             = "join"
	EventJoined           = "joined"
	EventReady            = "ready"
	EventFull             = "full"
	EventRawDeliver       = "to_client_raw"
	EventTranslated       = "translated"
	EventTranslationError = "translation_error"
	EventLog              = "log"
)

// Message is the envelope for every websocket frame in both directions.
// Payloads on the relay channels are opaque: the server passes them through
// verbatim and never inspects their structure.
type Message struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinAck is the payload of created and joined acknowledgments.
type JoinAck struct {
	ID string `json:"id"`
}

// TranslateRequest is the payload of a translate request.
type TranslateRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Text wraps a plain string as a JSON payload.
func Text(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Object marshals v as a JSON payload.
func Object(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
