package room

import (
	"context"
	"fmt"

	"github.com/manpreetbhatti/menuroom/internal/protocol"
)

// HandleMessage routes one inbound real-time message to the service.
func (s *Service) HandleMessage(ctx context.Context, connID string, env protocol.Envelope) {
	var err error
	switch env.Type {
	case protocol.KindJoinRoom:
		var join protocol.JoinRoom
		if join, err = protocol.Bind[protocol.JoinRoom](env); err == nil {
			// failures already reported to the connection
			_ = s.Join(ctx, connID, join)
			return
		}
	case protocol.KindLeaveRoom:
		var leave protocol.LeaveRoom
		if leave, err = protocol.Bind[protocol.LeaveRoom](env); err == nil {
			s.Leave(ctx, connID, leave.RoomID)
			return
		}
	case protocol.KindProcessMutation:
		var req protocol.ProcessMutation
		if req, err = protocol.Bind[protocol.ProcessMutation](env); err == nil {
			_ = s.Mutate(ctx, connID, req)
			return
		}
	case protocol.KindUpdatePresence:
		var update protocol.UpdatePresence
		if update, err = protocol.Bind[protocol.UpdatePresence](env); err == nil {
			err = s.SetPresence(ctx, connID, update)
		}
	case protocol.KindTyping:
		var typing protocol.Typing
		if typing, err = protocol.Bind[protocol.Typing](env); err == nil {
			err = s.Typing(ctx, connID, typing)
		}
	default:
		err = fmt.Errorf("unsupported message type %q", env.Type)
	}

	if err != nil {
		s.log.Debug("Message refused", "conn", connID, "type", env.Type, "error", err)
		s.broadcaster.SendTo(connID, protocol.KindError, protocol.Error{Message: err.Error()})
	}
}

func (s *Service) HandleDisconnect(ctx context.Context, connID string) {
	s.Disconnect(ctx, connID)
}
