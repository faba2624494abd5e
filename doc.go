// Package wirestream exchanges typed messages over an arbitrary byte
// transport as length-prefixed frames.
//
// Each frame is a 4-byte big-endian unsigned payload length followed by
// exactly that many payload bytes. There are no other markers, no version
// byte and no checksum; ordering and integrity are the transport's job.
// Frames carry encoded envelopes, which on this wire are the JSON unions
// defined in the messages subpackage, though the framing layer only sees
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler.
//
// A MessageStream binds both halves of a duplex connection:
//
//	stream := wirestream.NewMessageStream(conn)
//	err := stream.WriteMessage(messages.NewFromClient(1, messages.Auth{UserID: 5, AccessToken: tok}))
//	...
//	var env messages.FromServer
//	err = stream.ReadMessage(&env)
//
// The layer hands back one decoded envelope at a time and carries no
// correlation, timeout or retry policy; matching responses and events to
// the calls that produced them belongs to the dispatcher driving the
// stream. A stream whose read or write failed mid-frame is desynchronized
// and must be discarded along with its connection.
package wirestream
