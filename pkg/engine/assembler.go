package engine

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/lrhodin/unichat/pkg/identity"
	"github.com/lrhodin/unichat/pkg/models"
)

// Assembler turns one unified group plus pre-fetched batch data into a
// display-ready ChatPreview. It performs no I/O: everything it needs must
// already be in the BatchResult.
type Assembler struct {
	log          zerolog.Logger
	nameTemplate *template.Template
}

// NewAssembler creates an assembler. displaynameTemplate renders
// participant names; see Config.DisplaynameTemplate.
func NewAssembler(displaynameTemplate string, log zerolog.Logger) (*Assembler, error) {
	tmpl, err := template.New("displayname").Parse(displaynameTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse displayname template: %w", err)
	}
	return &Assembler{
		log:          log.With().Str("component", "assembler").Logger(),
		nameTemplate: tmpl,
	}, nil
}

// AssembleAll assembles previews for a list of groups. A group that fails
// to assemble is logged and skipped; one inconsistent group must never
// take down the rest of the list.
func (a *Assembler) AssembleAll(groups []models.ConversationGroup, members map[string][]models.ChannelConversation, data *BatchResult) []ChatPreview {
	previews := make([]ChatPreview, 0, len(groups))
	for i := range groups {
		preview, err := a.Assemble(&groups[i], members[groups[i].ID], data)
		if err != nil {
			a.log.Warn().Err(err).Str("group_id", groups[i].ID).Msg("Skipping group that failed to assemble")
			continue
		}
		if preview != nil {
			previews = append(previews, *preview)
		}
	}
	return previews
}

// Assemble builds the view-model for one group. Returns nil (no error) when
// the group has no live members.
func (a *Assembler) Assemble(g *models.ConversationGroup, members []models.ChannelConversation, data *BatchResult) (*ChatPreview, error) {
	if len(members) == 0 {
		return nil, nil
	}

	primary := members[0]
	for _, m := range members {
		if m.ID == g.PrimaryID {
			primary = m
			break
		}
	}

	latest, hasLatest := latestAcrossMembers(members, data)

	memberIDs := make([]string, len(members))
	unread := 0
	pinned := g.Pinned
	muted := g.Muted
	allMuted := true
	lastTS := int64(0)
	for i, m := range members {
		memberIDs[i] = m.ID
		unread += m.UnreadCount
		if m.Pinned {
			pinned = true
		}
		if !m.Muted {
			allMuted = false
		}
		if m.LastMessageTS > lastTS {
			lastTS = m.LastMessageTS
		}
	}
	if !muted && allMuted {
		muted = true
	}
	if g.UnreadOverride != nil {
		unread = *g.UnreadOverride
	}
	if hasLatest && latest.TimestampMS > lastTS {
		lastTS = latest.TimestampMS
	}

	preview := &ChatPreview{
		GroupID:     g.ID,
		DisplayName: a.displayName(g, primary, members, data),
		AvatarPath:  a.avatarPath(g, members, data),
		TimestampMS: lastTS,
		UnreadCount: unread,
		Pinned:      pinned,
		Muted:       muted,
		Snoozed:     g.Snoozed,
		MemberIDs:   memberIDs,
		Merged:      len(members) > 1,
	}

	if hasLatest {
		attachments := data.Attachments[latest.GUID]
		kind := classifyMessage(&latest, attachments)
		preview.Kind = kind
		preview.Status = deliveryStatus(&latest)
		preview.Preview = a.previewText(&latest, kind, primary, data)
	} else {
		preview.Kind = KindText
		preview.Status = StatusNone
	}
	return preview, nil
}

// latestAcrossMembers picks the arg-max by timestamp over the members'
// pre-fetched latest messages, with guid as the deterministic tie-break.
func latestAcrossMembers(members []models.ChannelConversation, data *BatchResult) (models.Message, bool) {
	var best models.Message
	found := false
	for _, m := range members {
		msg, ok := data.Latest[m.ID]
		if !ok {
			continue
		}
		if !found || msg.TimestampMS > best.TimestampMS ||
			(msg.TimestampMS == best.TimestampMS && msg.GUID > best.GUID) {
			best = msg
			found = true
		}
	}
	return best, found
}

// displayName resolves the row title with the fixed precedence: group
// override, primary channel's own name, best participant's contact name
// (inferred names get a "Maybe: " prefix), then the formatted raw address.
func (a *Assembler) displayName(g *models.ConversationGroup, primary models.ChannelConversation, members []models.ChannelConversation, data *BatchResult) string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	if primary.DisplayName != "" {
		return primary.DisplayName
	}
	if p := bestParticipant(members, data); p != nil {
		if p.ContactName != "" {
			name := a.renderName(p.ContactName, p.Address)
			if p.NameInferred {
				return "Maybe: " + name
			}
			return name
		}
		return identity.FormatAddress(p.Address)
	}
	return identity.FormatAddress(primary.Address)
}

func (a *Assembler) avatarPath(g *models.ConversationGroup, members []models.ChannelConversation, data *BatchResult) string {
	if g.AvatarPath != "" {
		return g.AvatarPath
	}
	if p := bestParticipant(members, data); p != nil && p.AvatarPath != "" {
		return p.AvatarPath
	}
	return ""
}

// bestParticipant is the most recently active non-self participant across
// all members.
func bestParticipant(members []models.ChannelConversation, data *BatchResult) *models.Participant {
	var best *models.Participant
	for _, m := range members {
		for i, p := range data.Participants[m.ID] {
			if p.IsMe {
				continue
			}
			if best == nil || p.LastActiveTS > best.LastActiveTS {
				best = &data.Participants[m.ID][i]
			}
		}
	}
	return best
}

// previewText renders the one-line preview: the raw text when non-blank,
// otherwise a canned phrase for the classified kind, with the sender prefix
// applied ("You: " for own messages, first name in group chats).
func (a *Assembler) previewText(msg *models.Message, kind MessageKind, primary models.ChannelConversation, data *BatchResult) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = previewPhrase(kind)
	}
	switch {
	case msg.IsFromMe:
		return "You: " + text
	case primary.IsGroup && msg.Sender != "":
		if name := senderFirstName(msg, data); name != "" {
			return name + ": " + text
		}
	}
	return text
}

func senderFirstName(msg *models.Message, data *BatchResult) string {
	for _, p := range data.Participants[msg.ConversationID] {
		if p.Address != msg.Sender && p.ID != msg.Sender {
			continue
		}
		if p.ContactName == "" {
			return ""
		}
		first, _, _ := strings.Cut(p.ContactName, " ")
		return first
	}
	return ""
}

// deliveryStatus maps a from-me message's ack state to a display status.
// Messages from others never carry one.
func deliveryStatus(msg *models.Message) DeliveryStatus {
	if !msg.IsFromMe {
		return StatusNone
	}
	switch {
	case msg.IsProvisional():
		return StatusSending
	case msg.ReadTS > 0:
		return StatusRead
	case msg.DeliveredTS > 0:
		return StatusDelivered
	case msg.ErrorCode == 0:
		return StatusSent
	default:
		return StatusNone
	}
}

func (a *Assembler) renderName(name, address string) string {
	var b strings.Builder
	err := a.nameTemplate.Execute(&b, struct {
		Name    string
		Address string
	}{Name: name, Address: identity.FormatAddress(address)})
	if err != nil || b.Len() == 0 {
		return name
	}
	return b.String()
}
