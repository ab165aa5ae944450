// Package protocol implements the agent wire format.
//
// A frame is a 4-byte big-endian payload length followed by exactly that many
// bytes of UTF-8 JSON. Every payload is an object with a single top-level key
// naming the operation:
//
//	{"StartSpan": {"request_id": "req-...", "span_id": "span-...", "operation": "SQL/Query", "timestamp": "..."}}
//
// Outgoing messages implement Message. Incoming payloads are classified into
// Response values by an ordered table of top-level keys; the first key present
// wins and a payload matching none of them yields ErrUnrecognizedResponse, so
// callers can tell well-formed-but-unexpected replies apart from corrupt bytes
// (ErrMalformedResponse).
package protocol
