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

// NotificationHubBaileysParser normalizes notification-hub events produced
// by the baileys implementation.
type NotificationHubBaileysParser struct{}

// NewNotificationHubBaileysParser creates the baileys message parser.
func NewNotificationHubBaileysParser() *NotificationHubBaileysParser {
	return &NotificationHubBaileysParser{}
}

func (p *NotificationHubBaileysParser) CanHandle(provider, channel, implementation string) bool {
	return strings.EqualFold(strings.TrimSpace(provider), parser.ProviderNotificationHub) &&
		strings.EqualFold(strings.TrimSpace(implementation), parser.ImplementationBaileys)
}

type baileysEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type baileysData struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName         string         `json:"pushName"`
	MessageType      string         `json:"messageType"`
	MessageTimestamp json.Number    `json:"messageTimestamp"`
	Message          baileysMessage `json:"message"`
}

type baileysMessage struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage    *baileysMedia `json:"imageMessage"`
	AudioMessage    *baileysMedia `json:"audioMessage"`
	VideoMessage    *baileysMedia `json:"videoMessage"`
	DocumentMessage *baileysMedia `json:"documentMessage"`
	StickerMessage  *baileysMedia `json:"stickerMessage"`
	ContactMessage  *struct {
		DisplayName string `json:"displayName"`
		VCard       string `json:"vcard"`
	} `json:"contactMessage"`
	LocationMessage *struct {
		DegreesLatitude  float64 `json:"degreesLatitude"`
		DegreesLongitude float64 `json:"degreesLongitude"`
		Name             string  `json:"name"`
	} `json:"locationMessage"`
}

type baileysMedia struct {
	URL      string `json:"url"`
	Base64   string `json:"base64"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName"`
	Caption  string `json:"caption"`
}

// Parse handles data delivered either as one object or as an array; both
// occur in the wild depending on the hub version.
func (p *NotificationHubBaileysParser) Parse(data parser.ParsedWebhookData, eventCtx EventContext) (ParseResult, error) {
	var env baileysEnvelope
	if err := json.Unmarshal(data.Payload, &env); err != nil {
		return ParseResult{}, fmt.Errorf("decode baileys envelope: %w", err)
	}

	var items []baileysData
	trimmed := strings.TrimSpace(string(env.Data))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return ParseResult{}, fmt.Errorf("decode baileys data array: %w", err)
		}
	case trimmed != "" && trimmed != "null":
		var single baileysData
		if err := json.Unmarshal(env.Data, &single); err != nil {
			return ParseResult{}, fmt.Errorf("decode baileys data: %w", err)
		}
		items = []baileysData{single}
	}
	if len(items) == 0 {
		return ParseResult{}, fmt.Errorf("baileys payload carries no messages")
	}

	// Sender identity comes from the first item; a single upsert event never
	// mixes conversations.
	first := items[0]
	batch := BatchContext{
		Sender: protocol.Participant{
			ID:    jidUser(first.Key.RemoteJid),
			Name:  strings.TrimSpace(first.PushName),
			Phone: jidUser(first.Key.RemoteJid),
		},
		Provider:       eventCtx.Provider,
		Channel:        eventCtx.Channel,
		Implementation: eventCtx.Implementation,
	}

	messages := make([]protocol.TypedMessage, 0, len(items))
	for _, item := range items {
		messages = append(messages, p.toTypedMessage(item, batch, eventCtx))
	}
	return ParseResult{Messages: messages, Batch: batch}, nil
}

func (p *NotificationHubBaileysParser) toTypedMessage(item baileysData, batch BatchContext, eventCtx EventContext) protocol.TypedMessage {
	msgType := detectType(item.MessageType, item.Message.variantKey())
	direction := protocol.DirectionIncoming
	if item.Key.FromMe {
		direction = protocol.DirectionOutgoing
	}

	var content protocol.Content
	switch msgType {
	case protocol.TypeImage:
		content.Media = fromBaileysMedia(item.Message.ImageMessage)
	case protocol.TypeAudio:
		content.Media = fromBaileysMedia(item.Message.AudioMessage)
	case protocol.TypeVideo:
		content.Media = fromBaileysMedia(item.Message.VideoMessage)
	case protocol.TypeDocument:
		content.Media = fromBaileysMedia(item.Message.DocumentMessage)
	case protocol.TypeSticker:
		content.Media = fromBaileysMedia(item.Message.StickerMessage)
	case protocol.TypeContact:
		if c := item.Message.ContactMessage; c != nil {
			content.Contact = &protocol.ContactContent{Name: c.DisplayName, VCard: c.VCard}
		} else {
			content.Contact = &protocol.ContactContent{}
		}
	case protocol.TypeLocation:
		if l := item.Message.LocationMessage; l != nil {
			content.Location = &protocol.LocationContent{
				Latitude:  l.DegreesLatitude,
				Longitude: l.DegreesLongitude,
				Label:     l.Name,
			}
		} else {
			content.Location = &protocol.LocationContent{}
		}
	default:
		content.Text = &protocol.TextContent{Body: item.Message.textBody()}
	}

	id := strings.TrimSpace(item.Key.ID)
	if id == "" {
		id = uuid.NewString()
	}
	ts := time.Now()
	if secs, err := item.MessageTimestamp.Int64(); err == nil && secs > 0 {
		ts = time.Unix(secs, 0)
	}

	return protocol.TypedMessage{
		ID:        id,
		Type:      msgType,
		Direction: direction,
		Timestamp: ts,
		Content:   content,
		Metadata: protocol.MessageMetadata{
			TenantID:          eventCtx.TenantID,
			ProjectID:         eventCtx.ProjectID,
			Provider:          eventCtx.Provider,
			Channel:           eventCtx.Channel,
			Implementation:    eventCtx.Implementation,
			Sender:            batch.Sender,
			ExternalMessageID: strings.TrimSpace(item.Key.ID),
		},
	}
}

// variantKey returns the name of the populated message variant, used as the
// secondary type discriminator when messageType is absent.
func (m baileysMessage) variantKey() string {
	switch {
	case m.ImageMessage != nil:
		return "imageMessage"
	case m.AudioMessage != nil:
		return "audioMessage"
	case m.VideoMessage != nil:
		return "videoMessage"
	case m.DocumentMessage != nil:
		return "documentMessage"
	case m.StickerMessage != nil:
		return "stickerMessage"
	case m.ContactMessage != nil:
		return "contactMessage"
	case m.LocationMessage != nil:
		return "locationMessage"
	case m.Conversation != "" || m.ExtendedTextMessage != nil:
		return "conversation"
	}
	return ""
}

func (m baileysMessage) textBody() string {
	if m.Conversation != "" {
		return m.Conversation
	}
	if m.ExtendedTextMessage != nil {
		return m.ExtendedTextMessage.Text
	}
	return ""
}

func fromBaileysMedia(media *baileysMedia) *protocol.MediaContent {
	if media == nil {
		return &protocol.MediaContent{}
	}
	return mediaContent(media.URL, media.Base64, media.MimeType, media.FileName, media.Caption)
}

// jidUser strips the server suffix from a WhatsApp JID
// ("5511999@s.whatsapp.net" becomes "5511999").
func jidUser(jid string) string {
	jid = strings.TrimSpace(jid)
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
