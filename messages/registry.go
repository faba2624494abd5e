package messages

import "encoding/json"

// Wire tags, one per variant arm.
const (
	KindAuth                    = "auth"
	KindAuthResponse            = "auth_response"
	KindCreateWorkspace         = "create_workspace"
	KindCreateWorkspaceResponse = "create_workspace_response"
	KindShareWorkspace          = "share_workspace"
	KindShareWorkspaceResponse  = "share_workspace_response"
	KindUploadFile              = "upload_file"
	KindWatchSessions           = "watch_sessions"
	KindSessionEvent            = "session_event"
)

// Role declarations. Each payload type is classified exactly once, here:
// requests name their response type, subscriptions their event type,
// one-way sends neither. There is no way to redeclare a role at runtime.

func (Auth) clientMessage()              {}
func (Auth) Kind() string                { return KindAuth }
func (Auth) pairedResponse(AuthResponse) {}

func (CreateWorkspace) clientMessage()                         {}
func (CreateWorkspace) Kind() string                           { return KindCreateWorkspace }
func (CreateWorkspace) pairedResponse(CreateWorkspaceResponse) {}

func (ShareWorkspace) clientMessage()                        {}
func (ShareWorkspace) Kind() string                          { return KindShareWorkspace }
func (ShareWorkspace) pairedResponse(ShareWorkspaceResponse) {}

func (UploadFile) clientMessage() {}
func (UploadFile) Kind() string   { return KindUploadFile }
func (UploadFile) oneWay()        {}

func (WatchSessions) clientMessage()           {}
func (WatchSessions) Kind() string             { return KindWatchSessions }
func (WatchSessions) pairedEvent(SessionEvent) {}

func (AuthResponse) serverMessage() {}
func (AuthResponse) Kind() string   { return KindAuthResponse }

func (CreateWorkspaceResponse) serverMessage() {}
func (CreateWorkspaceResponse) Kind() string   { return KindCreateWorkspaceResponse }

func (ShareWorkspaceResponse) serverMessage() {}
func (ShareWorkspaceResponse) Kind() string   { return KindShareWorkspaceResponse }

func (SessionEvent) serverMessage() {}
func (SessionEvent) Kind() string   { return KindSessionEvent }

// The declarations above, asserted. A request whose response type is not a
// server message, or a payload missing its role, fails to build.
var (
	_ RequestMessage[AuthResponse]            = Auth{}
	_ RequestMessage[CreateWorkspaceResponse] = CreateWorkspace{}
	_ RequestMessage[ShareWorkspaceResponse]  = ShareWorkspace{}
	_ SendMessage                             = UploadFile{}
	_ SubscribeMessage[SessionEvent]          = WatchSessions{}

	_ ServerMessage = AuthResponse{}
	_ ServerMessage = CreateWorkspaceResponse{}
	_ ServerMessage = ShareWorkspaceResponse{}
	_ ServerMessage = SessionEvent{}
)

// Decode tables, keyed by wire tag. An arm absent here does not exist on
// the wire.

func clientArm[M ClientMessage]() func(json.RawMessage) (ClientMessage, error) {
	return func(body json.RawMessage) (ClientMessage, error) {
		var m M
		if len(body) > 0 {
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
}

func serverArm[M ServerMessage]() func(json.RawMessage) (ServerMessage, error) {
	return func(body json.RawMessage) (ServerMessage, error) {
		var m M
		if len(body) > 0 {
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
}

var clientArms = map[string]func(json.RawMessage) (ClientMessage, error){
	KindAuth:            clientArm[Auth](),
	KindCreateWorkspace: clientArm[CreateWorkspace](),
	KindShareWorkspace:  clientArm[ShareWorkspace](),
	KindUploadFile:      clientArm[UploadFile](),
	KindWatchSessions:   clientArm[WatchSessions](),
}

var serverArms = map[string]func(json.RawMessage) (ServerMessage, error){
	KindAuthResponse:            serverArm[AuthResponse](),
	KindCreateWorkspaceResponse: serverArm[CreateWorkspaceResponse](),
	KindShareWorkspaceResponse:  serverArm[ShareWorkspaceResponse](),
	KindSessionEvent:            serverArm[SessionEvent](),
}
