package normalizer

import (
	"encoding/base64"
	"mime"
	"path/filepath"
	"strings"

	"github.com/omnirelay/omnirelay/internal/protocol"
)

// detectType resolves the message type from an ordered pair of
// discriminators: the primary field first, then the provider-specific
// secondary field, defaulting to TEXT when both are absent. The default is
// a deliberate leniency policy so unrecognized payloads still flow as text.
func detectType(primary, secondary string) protocol.MessageType {
	if t, ok := mapType(primary); ok {
		return t
	}
	if t, ok := mapType(secondary); ok {
		return t
	}
	return protocol.TypeText
}

func mapType(raw string) (protocol.MessageType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text", "chat", "conversation", "extendedtextmessage":
		return protocol.TypeText, true
	case "audio", "ptt", "voice", "audiomessage":
		return protocol.TypeAudio, true
	case "video", "videomessage":
		return protocol.TypeVideo, true
	case "image", "imagemessage":
		return protocol.TypeImage, true
	case "document", "file", "documentmessage":
		return protocol.TypeDocument, true
	case "vcard", "contact", "contactmessage", "contacts":
		return protocol.TypeContact, true
	case "location", "locationmessage":
		return protocol.TypeLocation, true
	case "sticker", "stickermessage":
		return protocol.TypeSticker, true
	}
	return protocol.TypeUnknown, false
}

// mediaContent builds a MediaContent preferring a remote URL over inline
// base64 bytes when both are present, and synthesizing a MIME type from the
// filename extension when the provider omits one.
func mediaContent(url, inlineB64, mimeType, filename, caption string) *protocol.MediaContent {
	content := &protocol.MediaContent{
		MimeType: normalizeMime(mimeType),
		Filename: strings.TrimSpace(filename),
		Caption:  caption,
	}
	if u := strings.TrimSpace(url); u != "" {
		content.URL = u
	} else if raw := strings.TrimSpace(inlineB64); raw != "" {
		if data, err := base64.StdEncoding.DecodeString(raw); err == nil {
			content.Data = data
		}
	}
	if content.MimeType == "" && content.Filename != "" {
		content.MimeType = mime.TypeByExtension(filepath.Ext(content.Filename))
	}
	return content
}

// normalizeMime strips codec suffixes some providers attach, e.g.
// "audio/ogg; codecs=opus" becomes "audio/ogg".
func normalizeMime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(raw); err == nil {
		return parsed
	}
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		return strings.TrimSpace(raw[:i])
	}
	return raw
}
