package protocol

import (
	"time"
)

// MessageType classifies the normalized content of a message.
type MessageType string

const (
	TypeText     MessageType = "TEXT"
	TypeAudio    MessageType = "AUDIO"
	TypeVideo    MessageType = "VIDEO"
	TypeImage    MessageType = "IMAGE"
	TypeDocument MessageType = "DOCUMENT"
	TypeContact  MessageType = "CONTACT"
	TypeLocation MessageType = "LOCATION"
	TypeSticker  MessageType = "STICKER"
	TypeUnknown  MessageType = "UNKNOWN"
)

func (t MessageType) String() string { return string(t) }

// IsMedia reports whether the type carries a media payload.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeAudio, TypeVideo, TypeImage, TypeDocument, TypeSticker:
		return true
	}
	return false
}

// Direction distinguishes inbound messages from replies the system sends.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// Participant identifies one side of a conversation.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// TextContent is the payload of a TEXT message.
type TextContent struct {
	Body string `json:"body"`
}

// MediaContent is the payload of AUDIO/VIDEO/IMAGE/DOCUMENT/STICKER
// messages. Exactly one of URL or Data is set; parsers prefer URL when the
// provider offers both.
type MediaContent struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// ContactContent is the payload of a CONTACT message.
type ContactContent struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	VCard string `json:"vcard,omitempty"`
}

// LocationContent is the payload of a LOCATION message.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// Content is the per-type payload of a TypedMessage. Exactly one variant is
// non-nil, matching the message type.
type Content struct {
	Text     *TextContent     `json:"text,omitempty"`
	Media    *MediaContent    `json:"media,omitempty"`
	Contact  *ContactContent  `json:"contact,omitempty"`
	Location *LocationContent `json:"location,omitempty"`
}

// MessageMetadata carries routing and identity context alongside a message.
type MessageMetadata struct {
	TenantID          string      `json:"tenant_id"`
	ProjectID         string      `json:"project_id,omitempty"`
	Provider          string      `json:"provider"`
	Channel           string      `json:"channel,omitempty"`
	Implementation    string      `json:"implementation,omitempty"`
	Sender            Participant `json:"sender"`
	Receiver          Participant `json:"receiver,omitempty"`
	ExternalMessageID string      `json:"external_message_id,omitempty"`
	ExternalThreadID  string      `json:"external_thread_id,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// TypedMessage is the normalized, provider-independent message. It is
// produced once by a message parser and never mutated afterward; pipeline
// steps annotate the surrounding MessageContext instead.
type TypedMessage struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Direction Direction       `json:"direction"`
	Timestamp time.Time       `json:"timestamp"`
	Content   Content         `json:"content"`
	Metadata  MessageMetadata `json:"metadata"`
}

// Body returns the text body for TEXT messages and the caption for media
// messages, empty otherwise.
func (m TypedMessage) Body() string {
	if m.Content.Text != nil {
		return m.Content.Text.Body
	}
	if m.Content.Media != nil {
		return m.Content.Media.Caption
	}
	return ""
}
