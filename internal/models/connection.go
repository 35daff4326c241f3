package models

type ConnectionMode string

const (
	ModeDisabled    ConnectionMode = "disabled"
	ModeConnecting  ConnectionMode = "connecting"
	ModeLivePush    ConnectionMode = "live-push"
	ModeLivePushErr ConnectionMode = "live-push-error"
	ModePolling     ConnectionMode = "polling"
	ModeMock        ConnectionMode = "mock"
)

// ConnectionState is the single per-session transport health signal.
type ConnectionState struct {
	Mode      ConnectionMode `json:"mode"`
	Connected bool           `json:"connected"`
}

func DisabledState() ConnectionState {
	return ConnectionState{Mode: ModeDisabled}
}
