// Package message defines the normalized output model of the streaming
// subsystem: the role-tagged Content Envelope, the Stream Event that
// wraps it on the wire, and the inbound/outbound control frames.
//
// The Content Envelope JSON shape is a compatibility contract with an
// external generative-content consumer and must be reproduced exactly,
// including field names and optionality:
//
//	{
//	  "role": "model" | "user",
//	  "parts": [
//	    {"text": "...", "thought": true},
//	    {"functionCall": {"name": "...", "args": {...}, "id": "..."}},
//	    {"functionResponse": {"name": "...", "response": {...}, "id": "..."}}
//	  ]
//	}
package message
