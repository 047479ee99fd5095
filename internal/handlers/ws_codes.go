// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the match change feed.
const (
	BadSubprotocolError   = 3000 // Client connected without the "match" subprotocol.
	InvalidAuthTokenError = 3001 // Session token missing, invalid or expired.
	InvalidMatchIDError   = 3003 // Match in the URL does not exist or was already archived.
	MatchEndedCode        = 3004 // Match was closed or deleted; no further frames follow.
)
