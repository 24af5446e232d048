package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnirelay/omnirelay/internal/parser"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// NotificationHubOfficialParser normalizes WhatsApp cloud-API change
// notifications relayed through notification-hub.
type NotificationHubOfficialParser struct{}

// NewNotificationHubOfficialParser creates the official-API message parser.
func NewNotificationHubOfficialParser() *NotificationHubOfficialParser {
	return &NotificationHubOfficialParser{}
}

func (p *NotificationHubOfficialParser) CanHandle(provider, channel, implementation string) bool {
	return strings.EqualFold(strings.TrimSpace(provider), parser.ProviderNotificationHub) &&
		strings.EqualFold(strings.TrimSpace(implementation), parser.ImplementationOfficial)
}

type officialPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []officialMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type officialMessage struct {
	From      string      `json:"from"`
	ID        string      `json:"id"`
	Timestamp json.Number `json:"timestamp"`
	Type      string      `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *officialMedia `json:"image"`
	Audio    *officialMedia `json:"audio"`
	Video    *officialMedia `json:"video"`
	Document *officialMedia `json:"document"`
	Sticker  *officialMedia `json:"sticker"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
	} `json:"location"`
	Contacts []struct {
		Name struct {
			FormattedName string `json:"formatted_name"`
		} `json:"name"`
		Phones []struct {
			Phone string `json:"phone"`
		} `json:"phones"`
	} `json:"contacts"`
}

type officialMedia struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

// Parse flattens all entry/change pairs of one notification into a single
// batch. The cloud API scopes one notification to one contact, so sender
// identity is extracted once.
func (p *NotificationHubOfficialParser) Parse(data parser.ParsedWebhookData, eventCtx EventContext) (ParseResult, error) {
	var payload officialPayload
	if err := json.Unmarshal(data.Payload, &payload); err != nil {
		return ParseResult{}, fmt.Errorf("decode official payload: %w", err)
	}

	batch := BatchContext{
		Provider:       eventCtx.Provider,
		Channel:        eventCtx.Channel,
		Implementation: eventCtx.Implementation,
	}
	var messages []protocol.TypedMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if batch.Sender.ID == "" && len(change.Value.Contacts) > 0 {
				contact := change.Value.Contacts[0]
				batch.Sender = protocol.Participant{
					ID:    strings.TrimSpace(contact.WaID),
					Name:  strings.TrimSpace(contact.Profile.Name),
					Phone: strings.TrimSpace(contact.WaID),
				}
			}
			for _, msg := range change.Value.Messages {
				messages = append(messages, p.toTypedMessage(msg, &batch, eventCtx))
			}
		}
	}
	if len(messages) == 0 {
		return ParseResult{}, fmt.Errorf("official payload carries no messages")
	}
	return ParseResult{Messages: messages, Batch: batch}, nil
}

func (p *NotificationHubOfficialParser) toTypedMessage(msg officialMessage, batch *BatchContext, eventCtx EventContext) protocol.TypedMessage {
	if batch.Sender.ID == "" {
		batch.Sender = protocol.Participant{ID: strings.TrimSpace(msg.From), Phone: strings.TrimSpace(msg.From)}
	}

	msgType := detectType(msg.Type, msg.variantKey())
	var content protocol.Content
	switch msgType {
	case protocol.TypeImage:
		content.Media = fromOfficialMedia(msg.Image)
	case protocol.TypeAudio:
		content.Media = fromOfficialMedia(msg.Audio)
	case protocol.TypeVideo:
		content.Media = fromOfficialMedia(msg.Video)
	case protocol.TypeDocument:
		content.Media = fromOfficialMedia(msg.Document)
	case protocol.TypeSticker:
		content.Media = fromOfficialMedia(msg.Sticker)
	case protocol.TypeLocation:
		if l := msg.Location; l != nil {
			content.Location = &protocol.LocationContent{Latitude: l.Latitude, Longitude: l.Longitude, Label: l.Name}
		} else {
			content.Location = &protocol.LocationContent{}
		}
	case protocol.TypeContact:
		contact := &protocol.ContactContent{}
		if len(msg.Contacts) > 0 {
			contact.Name = msg.Contacts[0].Name.FormattedName
			if len(msg.Contacts[0].Phones) > 0 {
				contact.Phone = msg.Contacts[0].Phones[0].Phone
			}
		}
		content.Contact = contact
	default:
		body := ""
		if msg.Text != nil {
			body = msg.Text.Body
		}
		content.Text = &protocol.TextContent{Body: body}
	}

	id := strings.TrimSpace(msg.ID)
	if id == "" {
		id = uuid.NewString()
	}
	ts := time.Now()
	if secs, err := msg.Timestamp.Int64(); err == nil && secs > 0 {
		ts = time.Unix(secs, 0)
	}

	return protocol.TypedMessage{
		ID:        id,
		Type:      msgType,
		Direction: protocol.DirectionIncoming,
		Timestamp: ts,
		Content:   content,
		Metadata: protocol.MessageMetadata{
			TenantID:          eventCtx.TenantID,
			ProjectID:         eventCtx.ProjectID,
			Provider:          eventCtx.Provider,
			Channel:           eventCtx.Channel,
			Implementation:    eventCtx.Implementation,
			Sender:            batch.Sender,
			ExternalMessageID: strings.TrimSpace(msg.ID),
		},
	}
}

func (m officialMessage) variantKey() string {
	switch {
	case m.Image != nil:
		return "image"
	case m.Audio != nil:
		return "audio"
	case m.Video != nil:
		return "video"
	case m.Document != nil:
		return "document"
	case m.Sticker != nil:
		return "sticker"
	case m.Location != nil:
		return "location"
	case len(m.Contacts) > 0:
		return "contacts"
	case m.Text != nil:
		return "text"
	}
	return ""
}

// fromOfficialMedia prefers a direct link; downloads by media id are
// expressed as a media:// reference resolved by the vision/transcription
// collaborator.
func fromOfficialMedia(media *officialMedia) *protocol.MediaContent {
	if media == nil {
		return &protocol.MediaContent{}
	}
	url := strings.TrimSpace(media.Link)
	if url == "" && strings.TrimSpace(media.ID) != "" {
		url = "media://" + strings.TrimSpace(media.ID)
	}
	return mediaContent(url, "", media.MimeType, media.Filename, media.Caption)
}
