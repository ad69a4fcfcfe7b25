package v12

import "github.com/nonebot/adapter-onebot/onebot/message"

// Segment builders mirror the upstream MessageSegment staticmethods.

func Text(text string) message.Segment { return message.NewText(text) }

func Mention(userID string) message.Segment {
	return message.Segment{Type: "mention", Data: map[string]any{"user_id": userID}}
}

func MentionAll() message.Segment {
	return message.Segment{Type: "mention_all", Data: map[string]any{}}
}

func Image(fileID string) message.Segment {
	return message.Segment{Type: "image", Data: map[string]any{"file_id": fileID}}
}

func Voice(fileID string) message.Segment {
	return message.Segment{Type: "voice", Data: map[string]any{"file_id": fileID}}
}

func Audio(fileID string) message.Segment {
	return message.Segment{Type: "audio", Data: map[string]any{"file_id": fileID}}
}

func Video(fileID string) message.Segment {
	return message.Segment{Type: "video", Data: map[string]any{"file_id": fileID}}
}

func File(fileID string) message.Segment {
	return message.Segment{Type: "file", Data: map[string]any{"file_id": fileID}}
}

func Location(latitude, longitude float64, title, content string) message.Segment {
	return message.Segment{Type: "location", Data: map[string]any{
		"latitude": latitude, "longitude": longitude, "title": title, "content": content,
	}}
}

func Reply(messageID, userID string) message.Segment {
	return message.Segment{Type: "reply", Data: map[string]any{"message_id": messageID, "user_id": userID}}
}
