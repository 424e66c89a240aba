package engine

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/lrhodin/unichat/pkg/models"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	asm, err := NewAssembler("{{.Name}}", zerolog.Nop())
	if err != nil {
		t.Fatalf("new assembler: %v", err)
	}
	return asm
}

func emptyBatch() *BatchResult {
	return &BatchResult{
		Latest:       map[string]models.Message{},
		Participants: map[string][]models.Participant{},
		Attachments:  map[string][]models.Attachment{},
	}
}

func TestAssembleMergedGroup(t *testing.T) {
	asm := newTestAssembler(t)
	group := models.ConversationGroup{
		ID:           "grp:tel:+15551230000",
		CanonicalKey: "tel:+15551230000",
		PrimaryID:    "imessage;-;+15551230000",
	}
	members := []models.ChannelConversation{
		{ID: "imessage;-;+15551230000", Channel: models.ChannelIMessage, Address: "+15551230000", LastMessageTS: 100, UnreadCount: 2},
		{ID: "sms;-;5551230000", Channel: models.ChannelSMS, Address: "5551230000", LastMessageTS: 50, UnreadCount: 1},
	}
	data := emptyBatch()
	data.Latest["imessage;-;+15551230000"] = models.Message{
		GUID: "m1", ConversationID: "imessage;-;+15551230000",
		Text: "see you there", TimestampMS: 100,
	}
	data.Latest["sms;-;5551230000"] = models.Message{
		GUID: "m2", ConversationID: "sms;-;5551230000",
		Text: "older", TimestampMS: 50,
	}

	preview, err := asm.Assemble(&group, members, data)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if preview == nil {
		t.Fatal("assemble returned nil for a live group")
	}
	if !preview.Merged {
		t.Error("two-member group not marked merged")
	}
	if preview.TimestampMS != 100 {
		t.Errorf("timestamp = %d, want the newest member's 100", preview.TimestampMS)
	}
	if preview.Preview != "see you there" {
		t.Errorf("preview = %q, want the newest message text", preview.Preview)
	}
	if preview.UnreadCount != 3 {
		t.Errorf("unread = %d, want sum 3", preview.UnreadCount)
	}
	if preview.DisplayName != "+1 (555) 123-0000" {
		t.Errorf("display name = %q, want formatted address", preview.DisplayName)
	}
}

func TestAssembleNoLiveMembers(t *testing.T) {
	asm := newTestAssembler(t)
	group := models.ConversationGroup{ID: "grp:x"}
	preview, err := asm.Assemble(&group, nil, emptyBatch())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if preview != nil {
		t.Fatal("expected nil preview for a group with no live members")
	}
}

func TestAssembleDisplayNamePrecedence(t *testing.T) {
	asm := newTestAssembler(t)
	member := models.ChannelConversation{ID: "c1", Address: "+15551230000"}

	t.Run("group override wins", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", DisplayName: "Work Thread", PrimaryID: "c1"}
		members := []models.ChannelConversation{{ID: "c1", DisplayName: "Channel Name"}}
		p, _ := asm.Assemble(&g, members, emptyBatch())
		if p.DisplayName != "Work Thread" {
			t.Errorf("display name = %q, want group override", p.DisplayName)
		}
	})

	t.Run("channel name beats contact", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		members := []models.ChannelConversation{{ID: "c1", DisplayName: "Channel Name"}}
		data := emptyBatch()
		data.Participants["c1"] = []models.Participant{{Address: "+15551230000", ContactName: "Alice Smith", LastActiveTS: 1}}
		p, _ := asm.Assemble(&g, members, data)
		if p.DisplayName != "Channel Name" {
			t.Errorf("display name = %q, want channel name", p.DisplayName)
		}
	})

	t.Run("contact name", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		data := emptyBatch()
		data.Participants["c1"] = []models.Participant{{Address: "+15551230000", ContactName: "Alice Smith", LastActiveTS: 1}}
		p, _ := asm.Assemble(&g, []models.ChannelConversation{member}, data)
		if p.DisplayName != "Alice Smith" {
			t.Errorf("display name = %q, want contact name", p.DisplayName)
		}
	})

	t.Run("inferred contact name gets maybe prefix", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		data := emptyBatch()
		data.Participants["c1"] = []models.Participant{{Address: "+15551230000", ContactName: "Alice", NameInferred: true, LastActiveTS: 1}}
		p, _ := asm.Assemble(&g, []models.ChannelConversation{member}, data)
		if p.DisplayName != "Maybe: Alice" {
			t.Errorf("display name = %q, want Maybe: Alice", p.DisplayName)
		}
	})

	t.Run("self participant is skipped", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		data := emptyBatch()
		data.Participants["c1"] = []models.Participant{{Address: "+15559999999", ContactName: "Me", IsMe: true, LastActiveTS: 99}}
		p, _ := asm.Assemble(&g, []models.ChannelConversation{member}, data)
		if p.DisplayName != "+1 (555) 123-0000" {
			t.Errorf("display name = %q, want formatted address", p.DisplayName)
		}
	})
}

func TestAssemblePreviewPrefixes(t *testing.T) {
	asm := newTestAssembler(t)

	t.Run("own message", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		members := []models.ChannelConversation{{ID: "c1", Address: "+15551230000"}}
		data := emptyBatch()
		data.Latest["c1"] = models.Message{GUID: "m", ConversationID: "c1", Text: "on my way", IsFromMe: true}
		p, _ := asm.Assemble(&g, members, data)
		if p.Preview != "You: on my way" {
			t.Errorf("preview = %q, want You: prefix", p.Preview)
		}
	})

	t.Run("group chat sender first name", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		members := []models.ChannelConversation{{ID: "c1", IsGroup: true, DisplayName: "Family"}}
		data := emptyBatch()
		data.Latest["c1"] = models.Message{GUID: "m", ConversationID: "c1", Sender: "+15551230000", Text: "dinner at 7"}
		data.Participants["c1"] = []models.Participant{{Address: "+15551230000", ContactName: "Alice Smith"}}
		p, _ := asm.Assemble(&g, members, data)
		if p.Preview != "Alice: dinner at 7" {
			t.Errorf("preview = %q, want first-name prefix", p.Preview)
		}
	})

	t.Run("blank text falls back to kind phrase", func(t *testing.T) {
		g := models.ConversationGroup{ID: "g", PrimaryID: "c1"}
		members := []models.ChannelConversation{{ID: "c1", Address: "+15551230000"}}
		data := emptyBatch()
		data.Latest["c1"] = models.Message{GUID: "m", ConversationID: "c1", HasAttachments: true, IsFromMe: true}
		data.Attachments["m"] = []models.Attachment{{MimeType: "image/jpeg"}}
		p, _ := asm.Assemble(&g, members, data)
		if p.Preview != "You: Photo" {
			t.Errorf("preview = %q, want You: Photo", p.Preview)
		}
		if p.Kind != KindImage {
			t.Errorf("kind = %v, want image", p.Kind)
		}
	})
}

func TestDeliveryStatus(t *testing.T) {
	cases := []struct {
		name string
		msg  models.Message
		want DeliveryStatus
	}{
		{"incoming has none", models.Message{ReadTS: 5}, StatusNone},
		{"provisional is sending", models.Message{GUID: models.ProvisionalGUIDPrefix + "x", IsFromMe: true}, StatusSending},
		{"read beats delivered", models.Message{GUID: "m", IsFromMe: true, ReadTS: 5, DeliveredTS: 4}, StatusRead},
		{"delivered", models.Message{GUID: "m", IsFromMe: true, DeliveredTS: 4}, StatusDelivered},
		{"sent", models.Message{GUID: "m", IsFromMe: true}, StatusSent},
		{"failed shows none", models.Message{GUID: "m", IsFromMe: true, ErrorCode: 22}, StatusNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deliveryStatus(&tc.msg); got != tc.want {
				t.Errorf("deliveryStatus = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAssembleFlagsAndOverrides(t *testing.T) {
	asm := newTestAssembler(t)
	g := models.ConversationGroup{ID: "g", PrimaryID: "a"}
	members := []models.ChannelConversation{
		{ID: "a", Address: "+15551230000", Pinned: true, Muted: true, UnreadCount: 4},
		{ID: "b", Address: "5551230000", Muted: true},
	}
	p, _ := asm.Assemble(&g, members, emptyBatch())
	if !p.Pinned {
		t.Error("any pinned member must pin the row")
	}
	if !p.Muted {
		t.Error("all members muted must mute the row")
	}

	override := 0
	g.UnreadOverride = &override
	p, _ = asm.Assemble(&g, members, emptyBatch())
	if p.UnreadCount != 0 {
		t.Errorf("unread = %d, want override 0", p.UnreadCount)
	}

	members[1].Muted = false
	g.UnreadOverride = nil
	p, _ = asm.Assemble(&g, members, emptyBatch())
	if p.Muted {
		t.Error("one unmuted member must leave the row unmuted")
	}
}
