// Package messages defines the envelope schema spoken over wirestream
// framing: one envelope type per direction, each carrying a correlation
// identifier and exactly one variant arm from a closed set of payload
// types. Every payload type is classified at declaration time as a
// request, a one-way send or a subscription (see registry.go); the paired
// response and event types are part of the declaration and checked at
// compile time.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client-direction payload types.

// Auth identifies the caller. Whether the credentials are any good is the
// server's business; this layer only carries them.
type Auth struct {
	UserID      uint32 `json:"user_id"`
	AccessToken string `json:"access_token"`
}

// CreateWorkspace asks the server to provision a new workspace.
type CreateWorkspace struct {
	Name string `json:"name"`
}

// ShareWorkspace asks the server to make a workspace joinable by others.
type ShareWorkspace struct {
	WorkspaceID uint64 `json:"workspace_id"`
}

// UploadFile pushes one file into a workspace. One-way, no reply.
type UploadFile struct {
	WorkspaceID uint64 `json:"workspace_id"`
	Path        string `json:"path"`
	Content     []byte `json:"content"`
}

// WatchSessions subscribes to session updates for a workspace. The server
// answers with a stream of SessionEvent pushes.
type WatchSessions struct {
	WorkspaceID uint64 `json:"workspace_id"`
}

// Server-direction payload types.

// AuthResponse answers Auth.
type AuthResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// CreateWorkspaceResponse answers CreateWorkspace.
type CreateWorkspaceResponse struct {
	WorkspaceID uint64 `json:"workspace_id"`
}

// ShareWorkspaceResponse answers ShareWorkspace.
type ShareWorkspaceResponse struct {
	URL string `json:"url"`
}

// SessionEvent is one pushed update for a WatchSessions subscription.
type SessionEvent struct {
	WorkspaceID uint64 `json:"workspace_id"`
	SessionID   uint32 `json:"session_id"`
	Status      string `json:"status"`
}

// FromClient is the client-direction envelope. The identifier is carried
// untouched; assignment, reuse and matching policy belong to the
// dispatcher, not to this layer.
type FromClient struct {
	ID      uint32
	Variant ClientMessage
}

// NewFromClient wraps payload in a client envelope.
func NewFromClient(id uint32, payload ClientMessage) *FromClient {
	return &FromClient{ID: id, Variant: payload}
}

// FromServer is the server-direction envelope.
type FromServer struct {
	ID      uint32
	Variant ServerMessage
}

// NewFromServer wraps payload in a server envelope.
func NewFromServer(id uint32, payload ServerMessage) *FromServer {
	return &FromServer{ID: id, Variant: payload}
}

// envelopeWire is the JSON shape of both envelopes:
// {"id":3,"kind":"auth","body":{...}}.
type envelopeWire struct {
	ID   uint32          `json:"id"`
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func marshalEnvelope(id uint32, kind string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("messages: encoding %s body: %w", kind, err)
	}
	return json.Marshal(envelopeWire{ID: id, Kind: kind, Body: body})
}

// MarshalBinary encodes the envelope into its stable wire form.
func (m *FromClient) MarshalBinary() ([]byte, error) {
	if m.Variant == nil {
		return nil, errors.New("messages: client envelope has no variant")
	}
	return marshalEnvelope(m.ID, m.Variant.Kind(), m.Variant)
}

// UnmarshalBinary decodes an envelope, rejecting unknown or missing
// variant kinds. The decoded payload does not alias data.
func (m *FromClient) UnmarshalBinary(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("messages: decoding client envelope: %w", err)
	}
	arm, ok := clientArms[w.Kind]
	if !ok {
		if w.Kind == "" {
			return errors.New("messages: client envelope has no variant kind")
		}
		return fmt.Errorf("messages: unknown client variant kind %q", w.Kind)
	}
	variant, err := arm(w.Body)
	if err != nil {
		return fmt.Errorf("messages: decoding %s body: %w", w.Kind, err)
	}
	m.ID = w.ID
	m.Variant = variant
	return nil
}

// MarshalBinary encodes the envelope into its stable wire form.
func (m *FromServer) MarshalBinary() ([]byte, error) {
	if m.Variant == nil {
		return nil, errors.New("messages: server envelope has no variant")
	}
	return marshalEnvelope(m.ID, m.Variant.Kind(), m.Variant)
}

// UnmarshalBinary decodes an envelope, rejecting unknown or missing
// variant kinds.
func (m *FromServer) UnmarshalBinary(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("messages: decoding server envelope: %w", err)
	}
	arm, ok := serverArms[w.Kind]
	if !ok {
		if w.Kind == "" {
			return errors.New("messages: server envelope has no variant kind")
		}
		return fmt.Errorf("messages: unknown server variant kind %q", w.Kind)
	}
	variant, err := arm(w.Body)
	if err != nil {
		return fmt.Errorf("messages: decoding %s body: %w", w.Kind, err)
	}
	m.ID = w.ID
	m.Variant = variant
	return nil
}
