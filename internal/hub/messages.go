package hub

import (
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
)

func (h *Hub) ProcessMessage(client *Client, data []byte) {
	h.metrics.IncMessagesReceived()

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug().Err(err).Str("clientId", client.ID).Msg("Failed to parse message")
		h.sendError(client, "PARSE_ERROR", "Invalid message format", "")
		return
	}

	h.logger.Debug().
		Str("clientId", client.ID).
		Str("type", string(msg.Type)).
		Msg("Processing message")

	switch msg.Type {
	case protocol.MsgSubscribe:
		if msg.ContestID == "" {
			h.sendError(client, "INVALID_CONTEST", "contestId is required", msg.RequestID)
			return
		}
		h.subscribe(client, protocol.LeaderboardTopic(msg.ContestID), msg.RequestID)

	case protocol.MsgUnsubscribe:
		if msg.ContestID == "" {
			h.sendError(client, "INVALID_CONTEST", "contestId is required", msg.RequestID)
			return
		}
		h.unsubscribe(client, protocol.LeaderboardTopic(msg.ContestID), msg.RequestID)
		if client.IsSubscribed(protocol.AdminAlertsTopic(msg.ContestID)) {
			h.unsubscribe(client, protocol.AdminAlertsTopic(msg.ContestID), msg.RequestID)
		}

	case protocol.MsgSubscribeAdmin:
		if !h.requireAdmin(client, msg) {
			return
		}
		if msg.ContestID == "" {
			h.sendError(client, "INVALID_CONTEST", "contestId is required", msg.RequestID)
			return
		}
		h.subscribe(client, protocol.AdminAlertsTopic(msg.ContestID), msg.RequestID)

	case protocol.MsgSubscribeAdminGlobal:
		if !h.requireAdmin(client, msg) {
			return
		}
		h.subscribe(client, protocol.TopicAdminAlertsGlobal, msg.RequestID)

	case protocol.MsgWatchSubmission:
		if msg.SubmissionID == "" {
			h.sendError(client, "INVALID_SUBMISSION", "submissionId is required", msg.RequestID)
			return
		}
		h.subscribe(client, protocol.SubmissionWatchTopic(msg.SubmissionID), msg.RequestID)

	case protocol.MsgPing:
		if response, err := protocol.NewPong(msg.RequestID); err == nil {
			h.Send(client, response)
		}

	default:
		h.sendError(client, "UNKNOWN_TYPE", "Unknown message type", msg.RequestID)
	}
}

func (h *Hub) requireAdmin(client *Client, msg *protocol.Message) bool {
	if client.Admin {
		return true
	}
	h.logger.Warn().
		Str("clientId", client.ID).
		Str("userId", client.UserID).
		Str("type", string(msg.Type)).
		Msg("Rejected admin subscription from non-admin")
	h.sendError(client, "FORBIDDEN", "Administrator role required", msg.RequestID)
	return false
}

func (h *Hub) subscribe(client *Client, topic, requestID string) {
	added := h.Subscribe(client, topic)
	if client.IsClosed() {
		return
	}

	if added {
		h.logger.Debug().
			Str("clientId", client.ID).
			Str("topic", topic).
			Int("subscribers", h.SubscriberCount(topic)).
			Msg("Client subscribed")
	}

	if response, err := protocol.NewSubscribed(protocol.MsgSubscribed, topic, requestID); err == nil {
		h.Send(client, response)
	}
	if h.onSubscribe != nil {
		h.onSubscribe(client, topic)
	}
}

func (h *Hub) unsubscribe(client *Client, topic, requestID string) {
	h.Unsubscribe(client, topic)
	if response, err := protocol.NewSubscribed(protocol.MsgUnsubscribed, topic, requestID); err == nil {
		h.Send(client, response)
	}
}

func (h *Hub) sendError(client *Client, code, message, requestID string) {
	if response, err := protocol.NewError(code, message, requestID); err == nil {
		h.Send(client, response)
	}
}
