// Package push keeps a push channel connected and turns its frames into delivery updates.
package push

import "github.com/BearBump/TrackSync/internal/models"

type Event int

const (
	EventConnect Event = iota + 1
	EventDisconnect
	EventReconnectDue
	EventOpened
	EventClosed
	EventErrored
	EventMessageReceived
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReconnectDue:
		return "reconnect-due"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	case EventMessageReceived:
		return "message"
	default:
		return "unknown"
	}
}

type Action int

const (
	ActionDial Action = iota + 1
	ActionScheduleReconnect
	ActionCancelReconnect
	ActionClose
	ActionDeliver
)

// Transition is the push connection state machine. It has no side effects; the Client
// performs the returned actions in order.
//
//	disabled   -connect->         connecting  [dial]
//	connecting -open->            live-push
//	any active -close->           connecting  [schedule reconnect]
//	connecting -reconnect due->   connecting  [dial]
//	any active -error->           live-push-error
//	any active -disconnect->      disabled    [cancel reconnect, close]
//
// An error only changes the reported status; the close that follows drives reconnection.
func Transition(st models.ConnectionState, ev Event) (models.ConnectionState, []Action) {
	connecting := models.ConnectionState{Mode: models.ModeConnecting}

	if st.Mode == models.ModeDisabled {
		if ev == EventConnect {
			return connecting, []Action{ActionDial}
		}
		return st, nil
	}

	switch ev {
	case EventDisconnect:
		return models.DisabledState(), []Action{ActionCancelReconnect, ActionClose}
	case EventOpened:
		if st.Mode == models.ModeConnecting {
			return models.ConnectionState{Mode: models.ModeLivePush, Connected: true}, nil
		}
	case EventClosed:
		return connecting, []Action{ActionScheduleReconnect}
	case EventReconnectDue:
		if st.Mode == models.ModeConnecting {
			return connecting, []Action{ActionDial}
		}
	case EventErrored:
		return models.ConnectionState{Mode: models.ModeLivePushErr}, nil
	case EventMessageReceived:
		if st.Mode == models.ModeLivePush || st.Mode == models.ModeLivePushErr {
			return st, []Action{ActionDeliver}
		}
	}
	return st, nil
}
