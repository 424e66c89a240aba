package engine

// MessageKind classifies the latest message for preview rendering.
// Classification runs in a fixed priority order; see classify.go.
type MessageKind string

const (
	KindDeleted    MessageKind = "deleted"
	KindReaction   MessageKind = "reaction"
	KindGroupEvent MessageKind = "group_event"
	KindLink       MessageKind = "link"
	KindApp        MessageKind = "app"
	KindSticker    MessageKind = "sticker"
	KindLocation   MessageKind = "location"
	KindContact    MessageKind = "contact"
	KindLivePhoto  MessageKind = "live_photo"
	KindGIF        MessageKind = "gif"
	KindImage      MessageKind = "image"
	KindVideo      MessageKind = "video"
	KindVoice      MessageKind = "voice"
	KindAudio      MessageKind = "audio"
	KindDocument   MessageKind = "document"
	KindFile       MessageKind = "file"
	KindText       MessageKind = "text"
)

// DeliveryStatus reflects the send state of the latest from-me message.
// Messages from others are always StatusNone.
type DeliveryStatus string

const (
	StatusNone      DeliveryStatus = "none"
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// ChatPreview is one display-ready row of the unified conversation list.
type ChatPreview struct {
	GroupID     string         `json:"groupId"`
	DisplayName string         `json:"displayName"`
	AvatarPath  string         `json:"avatarPath,omitempty"`
	Preview     string         `json:"preview"`
	Kind        MessageKind    `json:"kind"`
	Status      DeliveryStatus `json:"status"`
	TimestampMS int64          `json:"timestampMs"`
	UnreadCount int            `json:"unreadCount"`
	Pinned      bool           `json:"pinned"`
	Muted       bool           `json:"muted"`
	Snoozed     bool           `json:"snoozed"`
	Typing      bool           `json:"typing"`
	// MemberIDs lists the channel conversation ids behind this row.
	MemberIDs []string `json:"memberIds"`
	// Merged is true when more than one channel conversation was folded in.
	Merged bool `json:"merged"`
}

// ListSnapshot is the published, immutable view of the conversation list.
// Every mutation publishes a brand-new snapshot; readers never observe a
// half-built update.
type ListSnapshot struct {
	Chats            []ChatPreview `json:"chats"`
	IsLoadingInitial bool          `json:"isLoadingInitial"`
	IsLoadingMore    bool          `json:"isLoadingMore"`
	HasMore          bool          `json:"hasMore"`
	LastError        string        `json:"lastError,omitempty"`
	Version          uint64        `json:"version"`
}
