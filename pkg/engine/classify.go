package engine

import (
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lrhodin/unichat/pkg/models"
)

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.[a-z0-9][^\s]*`)

// locationTextPattern matches texts that are really shared locations:
// map links and the canned "Current Location" share.
var locationTextPattern = regexp.MustCompile(`(?i)maps\.apple\.com|maps\.google\.com|goo\.gl/maps|current location`)

// documentMimes are mime types classified as documents rather than generic
// files, matched through the mimetype hierarchy so e.g. specialised XML
// vendor types still resolve.
var documentMimes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/rtf",
}

// classifyMessage determines the preview kind for a message. The priority
// order is fixed: deletion and reactions beat everything, attachments beat
// text heuristics, and the location text pattern is only consulted for
// plain texts.
func classifyMessage(msg *models.Message, attachments []models.Attachment) MessageKind {
	switch {
	case msg.DeletedTS > 0:
		return KindDeleted
	case msg.IsReaction:
		return KindReaction
	case msg.IsGroupEvent:
		return KindGroupEvent
	case urlPattern.MatchString(msg.Text):
		return KindLink
	case msg.BalloonBundleID != "":
		return KindApp
	case msg.HasAttachments && len(attachments) > 0:
		return classifyAttachment(attachments[0])
	case locationTextPattern.MatchString(msg.Text):
		return KindLocation
	default:
		return KindText
	}
}

func classifyAttachment(att models.Attachment) MessageKind {
	mime := strings.ToLower(att.MimeType)
	name := strings.ToLower(att.FileName)
	switch {
	case att.IsSticker:
		return KindSticker
	case mime == "text/x-vlocation" || strings.HasSuffix(name, ".loc.vcf"):
		return KindLocation
	case mime == "text/vcard" || mime == "text/x-vcard":
		return KindContact
	case att.IsLivePhoto:
		return KindLivePhoto
	case mime == "image/gif":
		return KindGIF
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case mime == "audio/amr" || mime == "audio/x-caf":
		return KindVoice
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	case isDocumentMime(mime):
		return KindDocument
	default:
		return KindFile
	}
}

func isDocumentMime(mime string) bool {
	mt := mimetype.Lookup(mime)
	if mt == nil {
		return false
	}
	for _, doc := range documentMimes {
		if mt.Is(doc) {
			return true
		}
	}
	return false
}

// previewPhrase returns the canned preview text for messages without usable
// body text.
func previewPhrase(kind MessageKind) string {
	switch kind {
	case KindDeleted:
		return "Message deleted"
	case KindReaction:
		return "Reaction"
	case KindGroupEvent:
		return "Group updated"
	case KindLink:
		return "Link"
	case KindApp:
		return "App message"
	case KindSticker:
		return "Sticker"
	case KindLocation:
		return "Location"
	case KindContact:
		return "Contact card"
	case KindLivePhoto:
		return "Live Photo"
	case KindGIF:
		return "GIF"
	case KindImage:
		return "Photo"
	case KindVideo:
		return "Video"
	case KindVoice:
		return "Voice message"
	case KindAudio:
		return "Audio"
	case KindDocument:
		return "Document"
	case KindFile:
		return "Attachment"
	default:
		return ""
	}
}
