package service

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// describeMessage turns a whatsmeow message event into a MessageReceived.
// Status broadcasts, protocol messages and unsupported content are skipped.
func describeMessage(evt *events.Message) (MessageReceived, bool) {
	if evt == nil || evt.Message == nil {
		return MessageReceived{}, false
	}
	if evt.Info.Chat == types.StatusBroadcastJID || evt.Message.GetProtocolMessage() != nil {
		return MessageReceived{}, false
	}

	kind, content, ok := classify(evt.Message)
	if !ok {
		return MessageReceived{}, false
	}

	return MessageReceived{
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		Type:      kind,
		Content:   content,
		IsGroup:   evt.Info.IsGroup,
		Timestamp: evt.Info.Timestamp,
	}, true
}

func classify(msg *waE2E.Message) (kind, content string, ok bool) {
	switch {
	case msg.GetConversation() != "":
		return "Text", msg.GetConversation(), true
	case msg.GetExtendedTextMessage() != nil:
		return "Extended Text", msg.GetExtendedTextMessage().GetText(), true
	case msg.GetImageMessage() != nil:
		return "Image", orDefault(msg.GetImageMessage().GetCaption(), "(no caption)"), true
	case msg.GetVideoMessage() != nil:
		return "Video", orDefault(msg.GetVideoMessage().GetCaption(), "(no caption)"), true
	case msg.GetAudioMessage() != nil:
		return "Audio", "Audio message", true
	case msg.GetDocumentMessage() != nil:
		return "Document", orDefault(msg.GetDocumentMessage().GetFileName(), "document"), true
	case msg.GetStickerMessage() != nil:
		return "Sticker", "Sticker message", true
	case msg.GetContactMessage() != nil:
		return "Contact", "Contact shared", true
	case msg.GetLocationMessage() != nil:
		return "Location", "Location shared", true
	}
	return "", "", false
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// receiptName maps receipt types to the names used in delivery logs.
func receiptName(t types.ReceiptType) string {
	switch t {
	case types.ReceiptTypeDelivered:
		return "DELIVERY_ACK"
	case types.ReceiptTypeSender:
		return "SERVER_ACK"
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return "READ"
	case types.ReceiptTypePlayed, types.ReceiptTypePlayedSelf:
		return "PLAYED"
	case types.ReceiptTypeRetry:
		return "RETRY"
	}
	return "UNKNOWN(" + string(t) + ")"
}
