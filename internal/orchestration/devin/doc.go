// Package devin adapts the remote Devin coding agent to client.AgentLoop.
//
// The package is layered leaf first:
//   - Client: authenticated HTTP transport with a bounded retry policy
//   - SessionRegistry: in-memory cache of observed session status and title
//   - Normalize: converts structured output and plans into response items
//   - ExtractAttachments, DetectMIMEType: attachment resolution helpers
//   - Agent: the run state machine that creates or continues a session and
//     polls it until a terminal status, guarded by a generation counter
//
// Importing the package registers the Devin factory with the client registry.
package devin
