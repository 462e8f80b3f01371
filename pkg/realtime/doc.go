// Package realtime runs voice sessions against the OpenAI Realtime API
// over WebRTC.
//
// A Controller owns at most one VoiceSession. Each session fetches a
// short-lived credential, opens a peer through a Connector (PeerManager
// for WebRTC, MockConnector in tests), and speaks the JSON event
// protocol on the "oai-events" data channel:
//
//	creds.Token -> Connector.Open -> channel open -> transcripts -> Stop
//
// Final user transcripts trigger a single response.create per session,
// switch the synthesis voice when the detected language changes, and are
// forwarded to the chat UI through the Aggregator. A user utterance that
// ends while the assistant is speaking is treated as an interruption and
// is never forwarded.
package realtime
