package relay

import "fmt"

// Error taxonomy surfaced to clients as error-status envelopes. None of these
// are fatal to a connection or to the process.
var (
	ErrWorkspaceNotFound = fmt.Errorf("workspace not found")
	ErrChannelNotFound   = fmt.Errorf("channel not found")
	ErrWorkspaceExists   = fmt.Errorf("workspace already exists")
	ErrChannelExists     = fmt.Errorf("channel already exists")
)
