package engine

// PushEventType identifies a discrete push event from a channel transport.
type PushEventType int

const (
	// EventNewMessage fires when a channel delivers a message.
	EventNewMessage PushEventType = iota
	// EventMessageUpdated fires on status changes, edits and reactions.
	EventMessageUpdated
	// EventChatReadStatus fires when a chat's read state flips.
	EventChatReadStatus
	// EventTyping fires when a remote participant starts or stops typing.
	EventTyping
)

func (t PushEventType) String() string {
	switch t {
	case EventNewMessage:
		return "new_message"
	case EventMessageUpdated:
		return "message_updated"
	case EventChatReadStatus:
		return "chat_read_status"
	case EventTyping:
		return "typing"
	default:
		return "unknown"
	}
}

// PushEvent is one typed event from the push/event source. ConversationID
// is the channel-qualified conversation the event belongs to.
type PushEvent struct {
	Type           PushEventType
	ConversationID string
	// IsRead is meaningful for EventChatReadStatus.
	IsRead bool
	// IsTyping is meaningful for EventTyping.
	IsTyping bool
}
