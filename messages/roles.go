package messages

// ClientMessage is one arm of the client-direction variant. The arm set is
// closed: the unexported marker keeps types outside this package from
// joining it.
type ClientMessage interface {
	// Kind returns the arm's wire tag.
	Kind() string

	clientMessage()
}

// ServerMessage is one arm of the server-direction variant.
type ServerMessage interface {
	Kind() string

	serverMessage()
}

// RequestMessage is a client message answered by exactly one server
// message of type R. The pairing is fixed where the type is declared, so
// code that sends a request and awaits anything but its paired response
// type does not compile.
type RequestMessage[R ServerMessage] interface {
	ClientMessage
	pairedResponse(R)
}

// SubscribeMessage is a client message that opens a stream of pushed
// server messages of type E.
type SubscribeMessage[E ServerMessage] interface {
	ClientMessage
	pairedEvent(E)
}

// SendMessage is a one-way client message. Nothing comes back.
type SendMessage interface {
	ClientMessage
	oneWay()
}

// ClientPayload unwraps the concrete payload M from a client envelope. The
// second result reports whether the variant holds that exact arm; false is
// routing information for a dispatcher trying handlers in turn, not a
// protocol fault.
func ClientPayload[M ClientMessage](env *FromClient) (M, bool) {
	m, ok := env.Variant.(M)
	return m, ok
}

// ServerPayload unwraps the concrete payload M from a server envelope.
func ServerPayload[M ServerMessage](env *FromServer) (M, bool) {
	m, ok := env.Variant.(M)
	return m, ok
}
