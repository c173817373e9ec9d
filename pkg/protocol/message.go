package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

type MessageType string

// Inbound, client → server.
const (
	MsgSubscribe            MessageType = "subscribe"
	MsgUnsubscribe          MessageType = "unsubscribe"
	MsgSubscribeAdmin       MessageType = "subscribe_admin"
	MsgSubscribeAdminGlobal MessageType = "subscribe_admin_global"
	MsgWatchSubmission      MessageType = "watch_submission"
	MsgPing                 MessageType = "ping"
)

// Outbound, server → client.
const (
	MsgConnected        MessageType = "connected"
	MsgSubscribed       MessageType = "subscribed"
	MsgUnsubscribed     MessageType = "unsubscribed"
	MsgPong             MessageType = "pong"
	MsgError            MessageType = "error"
	MsgViolationAlert   MessageType = "violation_alert"
	MsgLeaderboard      MessageType = "leaderboard"
	MsgSubmissionUpdate MessageType = "submission_update"
)

var ErrMissingType = errors.New("message type is required")

// Message is the flat inbound frame: {"type":"subscribe","contestId":"c1"}.
type Message struct {
	Type         MessageType `json:"type"`
	ContestID    string      `json:"contestId,omitempty"`
	SubmissionID string      `json:"submissionId,omitempty"`
	RequestID    string      `json:"requestId,omitempty"`
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

type ConnectedPayload struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	ClientID string      `json:"clientId"`
}

type SubscribedPayload struct {
	Type      MessageType `json:"type"`
	Topic     string      `json:"topic"`
	RequestID string      `json:"requestId,omitempty"`
}

type ErrorPayload struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
}

type ViolationAlert struct {
	Type                  MessageType `json:"type"`
	ContestID             string      `json:"contestId"`
	ContestTitle          string      `json:"contestTitle"`
	ParticipantID         string      `json:"participantId"`
	ParticipantName       string      `json:"participantName"`
	ParticipantRollNumber string      `json:"participantRollNumber"`
	ViolationType         string      `json:"violationType"`
	ViolationCount        int         `json:"violationCount"`
	IsFlagged             bool        `json:"isFlagged"`
	IsDisqualified        bool        `json:"isDisqualified"`
	Metadata              string      `json:"metadata"`
	Timestamp             time.Time   `json:"timestamp"`
}

type LeaderboardPayload struct {
	Type      MessageType `json:"type"`
	ContestID string      `json:"contestId"`
	Data      interface{} `json:"data"`
}

type SubmissionUpdate struct {
	Type         MessageType `json:"type"`
	SubmissionID string      `json:"submissionId"`
	Status       string      `json:"status"`
}

func NewConnected(userID, clientID string) ([]byte, error) {
	return json.Marshal(ConnectedPayload{Type: MsgConnected, UserID: userID, ClientID: clientID})
}

func NewSubscribed(msgType MessageType, topic, requestID string) ([]byte, error) {
	return json.Marshal(SubscribedPayload{Type: msgType, Topic: topic, RequestID: requestID})
}

func NewPong(requestID string) ([]byte, error) {
	return json.Marshal(SubscribedPayload{Type: MsgPong, RequestID: requestID})
}

func NewError(code, message, requestID string) ([]byte, error) {
	return json.Marshal(ErrorPayload{Type: MsgError, Code: code, Message: message, RequestID: requestID})
}

func NewViolationAlert(alert ViolationAlert) ([]byte, error) {
	alert.Type = MsgViolationAlert
	return json.Marshal(alert)
}

func NewLeaderboard(contestID string, rows interface{}) ([]byte, error) {
	return json.Marshal(LeaderboardPayload{Type: MsgLeaderboard, ContestID: contestID, Data: rows})
}

func NewSubmissionUpdate(submissionID, status string) ([]byte, error) {
	return json.Marshal(SubmissionUpdate{Type: MsgSubmissionUpdate, SubmissionID: submissionID, Status: status})
}
