// Package models defines the persistent entities shared by the store and the
// aggregation engine.
package models

// Channel identifies the protocol a conversation record belongs to.
type Channel string

const (
	ChannelIMessage Channel = "imessage"
	ChannelSMS      Channel = "sms"
)

// Rank orders channels for primary-channel selection. The rich-messaging
// channel always beats carrier SMS/MMS/RCS; unknown channels sort last.
func (c Channel) Rank() int {
	switch c {
	case ChannelIMessage:
		return 2
	case ChannelSMS:
		return 1
	default:
		return 0
	}
}

// Category partitions the conversation list for pagination. Merged groups,
// ungrouped group chats and ungrouped 1:1 chats are paged independently so
// that one huge category can't starve the others.
type Category string

const (
	CategoryGrouped         Category = "grouped"
	CategoryUngroupedGroup  Category = "ungrouped_group"
	CategoryUngroupedDirect Category = "ungrouped_direct"
)

// Categories lists all page categories in fetch order.
var Categories = []Category{CategoryGrouped, CategoryUngroupedGroup, CategoryUngroupedDirect}

// ChannelConversation is one per-protocol conversation record, e.g. a single
// iMessage thread or a single SMS thread for one address or group.
type ChannelConversation struct {
	// ID is the channel-qualified conversation identifier,
	// e.g. "imessage;-;+15551230000" or "sms;-;+15551230000".
	ID            string  `json:"id"`
	Channel       Channel `json:"channel"`
	Address       string  `json:"address"`
	DisplayName   string  `json:"displayName,omitempty"`
	IsGroup       bool    `json:"isGroup"`
	LastMessageTS int64   `json:"lastMessageTs"`
	UnreadCount   int     `json:"unreadCount"`
	Pinned        bool    `json:"pinned"`
	Muted         bool    `json:"muted"`
	Archived      bool    `json:"archived"`
	Deleted       bool    `json:"deleted"`
	Draft         string  `json:"draft,omitempty"`
}

// ConversationGroup is the logical conversation produced by merging channel
// conversations that resolve to the same canonical address key. Membership
// lives in an explicit join table (group_member), never as back-references.
//
// Aggregate fields on the group are overrides: when unset, the value is
// derived deterministically from member data at assembly time.
type ConversationGroup struct {
	ID           string `json:"id"`
	CanonicalKey string `json:"canonicalKey,omitempty"`
	// PrimaryID is always one of the group's member conversation IDs.
	PrimaryID      string `json:"primaryId"`
	DisplayName    string `json:"displayName,omitempty"`
	AvatarPath     string `json:"avatarPath,omitempty"`
	UnreadOverride *int   `json:"unreadOverride,omitempty"`
	Pinned         bool   `json:"pinned"`
	Muted          bool   `json:"muted"`
	Snoozed        bool   `json:"snoozed"`
	Category       string `json:"category,omitempty"`
}

// GroupMember is one row of the group membership join table. A conversation
// is a member of at most one group at any time (unique index on
// conversation_id enforces this).
type GroupMember struct {
	GroupID        string `json:"groupId"`
	ConversationID string `json:"conversationId"`
}

// ProvisionalGUIDPrefix marks messages that were published optimistically
// before the channel acknowledged them. Such messages render as SENDING.
const ProvisionalGUIDPrefix = "temp-"

// Message is a single message row. Timestamps are Unix milliseconds; zero
// means unset.
type Message struct {
	GUID           string `json:"guid"`
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender,omitempty"`
	Text           string `json:"text,omitempty"`
	TimestampMS    int64  `json:"timestampMs"`
	IsFromMe       bool   `json:"isFromMe"`
	HasAttachments bool   `json:"hasAttachments"`
	IsReaction     bool   `json:"isReaction"`
	IsGroupEvent   bool   `json:"isGroupEvent"`
	DeletedTS      int64  `json:"deletedTs,omitempty"`

	// AssociatedGUID/AssociatedType link reactions to their target message.
	AssociatedGUID string `json:"associatedGuid,omitempty"`
	AssociatedType string `json:"associatedType,omitempty"`

	// BalloonBundleID is set for app-payload messages (games, payments, ...).
	BalloonBundleID string `json:"balloonBundleId,omitempty"`

	DeliveredTS int64 `json:"deliveredTs,omitempty"`
	ReadTS      int64 `json:"readTs,omitempty"`
	ErrorCode   int   `json:"errorCode,omitempty"`
}

// IsProvisional reports whether the message still carries the provisional
// (unacknowledged) GUID marker.
func (m *Message) IsProvisional() bool {
	return len(m.GUID) > len(ProvisionalGUIDPrefix) && m.GUID[:len(ProvisionalGUIDPrefix)] == ProvisionalGUIDPrefix
}

// Participant is one address participating in a channel conversation.
type Participant struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Address        string `json:"address"`
	ContactName    string `json:"contactName,omitempty"`
	AvatarPath     string `json:"avatarPath,omitempty"`
	// NameInferred marks names guessed from message content rather than the
	// address book; they render with a "Maybe: " prefix.
	NameInferred bool `json:"nameInferred"`
	IsMe         bool `json:"isMe"`
	// LastActiveTS is the timestamp of this participant's most recent message,
	// used to pick the "best" participant for display-name fallback.
	LastActiveTS int64 `json:"lastActiveTs"`
}

// Attachment is metadata for one file attached to a message. Capability
// flags that can't be derived from the mime type alone (stickers, Live
// Photos) are stored explicitly.
type Attachment struct {
	ID          string `json:"id"`
	MessageGUID string `json:"messageGuid"`
	MimeType    string `json:"mimeType,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	ByteSize    int64  `json:"byteSize"`
	IsSticker   bool   `json:"isSticker"`
	IsLivePhoto bool   `json:"isLivePhoto"`
}
