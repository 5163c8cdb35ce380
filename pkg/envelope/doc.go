// Package envelope defines the tagged, fixed-size unit that the messenger
// moves through its transport.
//
// An Envelope is either an internal action (today only ActionNone, used to
// wake the worker during teardown) or a user message of 1..MaxMessageSize
// bytes. Builders copy the caller's buffer, so the caller may reuse it as
// soon as the builder returns. Malformed user messages are programmer
// errors: BuildUserMessage panics rather than returning an error.
//
// Envelopes that leave the process (the SysV transport) use the fixed
// EncodedSize layout produced by MarshalBinary.
package envelope
