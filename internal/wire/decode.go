package wire

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedNotification is returned for frames that are not valid JSON
var ErrMalformedNotification = errors.New("wire: malformed notification")

// DecodeNotification turns one notification frame into its payloads.
//
// A frame looks like
//
//	{"id": "...", "payload": [{"id", "type", "conversation", "from", "time", "content": {...}}]}
//
// Content that does not fit the declared type is decoded as nil.
func DecodeNotification(data []byte) ([]*Payload, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedNotification
	}

	var payloads []*Payload
	gjson.GetBytes(data, "payload").ForEach(func(_, event gjson.Result) bool {
		payloads = append(payloads, decodePayload(event))
		return true
	})
	return payloads, nil
}

func decodePayload(event gjson.Result) *Payload {
	p := &Payload{
		ID:             event.Get("id").String(),
		Type:           PayloadType(event.Get("type").String()),
		ConversationID: event.Get("conversation").String(),
		From:           event.Get("from").String(),
	}
	if ts, err := time.Parse(time.RFC3339Nano, event.Get("time").String()); err == nil {
		p.Time = ts
	}
	p.Content = decodeContent(p.Type, event.Get("content"))
	return p
}

func decodeContent(payloadType PayloadType, raw gjson.Result) Content {
	switch payloadType {
	case PayloadText:
		text := raw.Get("text")
		if text.Type != gjson.String {
			return nil
		}
		content := TextContent{Text: text.String()}
		if quote := raw.Get("quote"); quote.IsObject() {
			content.Quote = &QuoteContent{QuotedMessageID: quote.Get("quotedMessageId").String()}
			if sum, err := base64.StdEncoding.DecodeString(quote.Get("quotedMessageSha256").String()); err == nil {
				content.Quote.QuotedMessageSha256 = sum
			}
		}
		return content

	case PayloadConfirmation:
		first := raw.Get("firstMessageId")
		if first.Type != gjson.String || first.String() == "" {
			return nil
		}
		content := ConfirmationContent{
			Type:           ConfirmationType(raw.Get("type").String()),
			FirstMessageID: first.String(),
		}
		if content.Type == "" {
			content.Type = ConfirmationDelivered
		}
		for _, id := range raw.Get("moreMessageIds").Array() {
			content.MoreMessageIDs = append(content.MoreMessageIDs, id.String())
		}
		return content

	case PayloadAsset, PayloadAssetImage:
		if !raw.IsObject() || !(raw.Get("mimeType").Exists() || raw.Get("name").Exists()) {
			return nil
		}
		return AssetContent{
			Name:     raw.Get("name").String(),
			MimeType: raw.Get("mimeType").String(),
			Size:     raw.Get("size").Int(),
			Width:    raw.Get("width").Int(),
			Height:   raw.Get("height").Int(),
		}

	case PayloadLocation:
		lat, lng := raw.Get("latitude"), raw.Get("longitude")
		if lat.Type != gjson.Number || lng.Type != gjson.Number {
			return nil
		}
		return LocationContent{
			Latitude:  lat.Float(),
			Longitude: lng.Float(),
			Name:      raw.Get("name").String(),
			Zoom:      raw.Get("zoom").Int(),
		}

	case PayloadPing:
		// pings carry no body, or an empty object
		if raw.Exists() && !raw.IsObject() {
			return nil
		}
		return PingContent{}

	case PayloadConnectionRequest:
		if !raw.IsObject() {
			return nil
		}
		return ConnectionRequestContent{
			Message: raw.Get("message").String(),
			Status:  raw.Get("status").String(),
		}
	}

	return nil
}
