package errors

// Failure classes surfaced across package boundaries. Callers match with Is.
var (
	// ErrInvalidChainID marks a chain id string that parses in neither base.
	ErrInvalidChainID = New("invalid chain id")

	// ErrProtocolError marks a malformed response from a remote peer or service.
	ErrProtocolError = New("protocol error")

	// ErrAuthorizationRejected marks a 2FA code the authorization service refused.
	ErrAuthorizationRejected = New("authorization rejected")

	// ErrDeploymentFailed marks a wallet deployment whose receipt never arrived.
	ErrDeploymentFailed = New("wallet deployment failed")

	// ErrUnsupportedMethod marks a session call method the relay does not handle.
	ErrUnsupportedMethod = New("unsupported method")

	// ErrInvalidCodeLength marks a 2FA code that is not exactly six characters.
	ErrInvalidCodeLength = New("2fa code must be 6 characters")

	// ErrTransport marks a network failure talking to an external service.
	ErrTransport = New("transport failure")
)
