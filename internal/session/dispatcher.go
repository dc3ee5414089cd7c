package session

import (
	"github.com/rbright/unirecog/internal/mrcp"
)

// HandleMessage routes one stack message to the session or channel it
// concerns. It is registered with the stack and runs on its callback goroutine.
func (a *Application) HandleMessage(msg mrcp.AppMessage) {
	if msg.Session != a.sessionID() {
		a.logger.Warn("message for a foreign session", "message_session", string(msg.Session))
		return
	}

	switch msg.Type {
	case mrcp.AppMessageSignaling:
		a.handleSignaling(msg)
	case mrcp.AppMessageControl:
		a.dumpControl("recv", msg.Control)
		ch := a.channel(msg.Channel)
		if ch == nil || msg.Control == nil {
			a.logger.Warn("control message for unknown channel", "channel", string(msg.Channel))
			return
		}
		ch.onControlMessage(msg.Control)
	default:
		a.logger.Warn("unknown message category", "type", msg.Type.String())
	}
}

func (a *Application) handleSignaling(msg mrcp.AppMessage) {
	sig := msg.Signaling
	switch sig.Type {
	case mrcp.SignalingResponse:
		a.handleSignalingResponse(msg)
	case mrcp.SignalingEvent:
		if sig.Event == mrcp.SignalingEventTerminate {
			a.logger.Info("terminate event received; waiting for the session terminate response")
			return
		}
		a.logger.Warn("unexpected signaling event", "event", sig.Event.String())
	case mrcp.SignalingRequest:
		a.logger.Warn("client cannot handle signaling requests", "command", sig.Command.String())
	default:
		a.logger.Warn("unknown signaling type", "type", sig.Type.String())
	}
}

func (a *Application) handleSignalingResponse(msg mrcp.AppMessage) {
	sig := msg.Signaling
	switch sig.Command {
	case mrcp.CommandSessionUpdate:
		a.logger.Info("session updated", "status", sig.Status.String())
	case mrcp.CommandSessionTerminate:
		a.onSessionTerminated(sig.Status)
	case mrcp.CommandChannelAdd:
		ch := a.channel(msg.Channel)
		if ch == nil {
			a.logger.Warn("channel add response for unknown channel", "channel", string(msg.Channel))
			return
		}
		ch.onChannelAdded(sig.Status)
	case mrcp.CommandChannelRemove:
		ch := a.channel(msg.Channel)
		if ch == nil {
			a.logger.Warn("channel remove response for unknown channel", "channel", string(msg.Channel))
			a.terminateFromCallback()
			return
		}
		ch.onChannelRemoved(sig.Status)
	case mrcp.CommandResourceDiscover:
		a.logger.Info("resource discovery is not supported", "status", sig.Status.String())
	default:
		a.logger.Warn("unexpected signaling response", "command", sig.Command.String())
	}
}
