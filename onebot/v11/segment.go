package v11

import (
	"strconv"

	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Segment builders mirror the upstream MessageSegment classmethods: each
// returns a single segment ready to append to a message.Message.

func Text(text string) message.Segment { return message.NewText(text) }

func At(userID int64) message.Segment {
	return message.Segment{Type: "at", Data: map[string]any{"qq": strconv.FormatInt(userID, 10)}}
}

func AtAll() message.Segment {
	return message.Segment{Type: "at", Data: map[string]any{"qq": "all"}}
}

func Face(id int64) message.Segment {
	return message.Segment{Type: "face", Data: map[string]any{"id": strconv.FormatInt(id, 10)}}
}

func Image(file string, imageType string, cache, proxy *bool, timeout *int) message.Segment {
	data := map[string]any{"file": file}
	if imageType != "" {
		data["type"] = imageType
	}
	if cache != nil {
		data["cache"] = boolToStr(*cache)
	}
	if proxy != nil {
		data["proxy"] = boolToStr(*proxy)
	}
	if timeout != nil {
		data["timeout"] = strconv.Itoa(*timeout)
	}
	return message.Segment{Type: "image", Data: data}
}

func Record(file string, magic *bool, cache, proxy *bool, timeout *int) message.Segment {
	data := map[string]any{"file": file}
	if magic != nil {
		data["magic"] = boolToStr(*magic)
	}
	if cache != nil {
		data["cache"] = boolToStr(*cache)
	}
	if proxy != nil {
		data["proxy"] = boolToStr(*proxy)
	}
	if timeout != nil {
		data["timeout"] = strconv.Itoa(*timeout)
	}
	return message.Segment{Type: "record", Data: data}
}

func Video(file string) message.Segment {
	return message.Segment{Type: "video", Data: map[string]any{"file": file}}
}

func ReplySegment(id int32) message.Segment {
	return message.Segment{Type: "reply", Data: map[string]any{"id": strconv.Itoa(int(id))}}
}

func Forward(id string) message.Segment {
	return message.Segment{Type: "forward", Data: map[string]any{"id": id}}
}

func Node(id int32) message.Segment {
	return message.Segment{Type: "node", Data: map[string]any{"id": strconv.Itoa(int(id))}}
}

// NodeCustom builds a forward-node segment carrying a nested message, used
// to assemble forward-message payloads out-of-band of a live chat.
func NodeCustom(userID int64, nickname string, content message.Message) message.Segment {
	return message.Segment{Type: "node", Data: map[string]any{
		"user_id":  strconv.FormatInt(userID, 10),
		"nickname": nickname,
		"content":  content,
	}}
}

func Poke(qq int64) message.Segment {
	return message.Segment{Type: "poke", Data: map[string]any{"qq": strconv.FormatInt(qq, 10)}}
}

func Shake() message.Segment {
	return message.Segment{Type: "shake", Data: map[string]any{}}
}

func Dice() message.Segment {
	return message.Segment{Type: "dice", Data: map[string]any{}}
}

func RPS() message.Segment {
	return message.Segment{Type: "rps", Data: map[string]any{}}
}

func Share(url, title, content, imageURL string) message.Segment {
	data := map[string]any{"url": url, "title": title}
	if content != "" {
		data["content"] = content
	}
	if imageURL != "" {
		data["image"] = imageURL
	}
	return message.Segment{Type: "share", Data: data}
}

func Location(lat, lon float64, title, content string) message.Segment {
	data := map[string]any{
		"lat": strconv.FormatFloat(lat, 'f', -1, 64),
		"lon": strconv.FormatFloat(lon, 'f', -1, 64),
	}
	if title != "" {
		data["title"] = title
	}
	if content != "" {
		data["content"] = content
	}
	return message.Segment{Type: "location", Data: data}
}

func Music(musicType string) message.Segment {
	return message.Segment{Type: "music", Data: map[string]any{"type": musicType}}
}

func JSON(data string) message.Segment {
	return message.Segment{Type: "json", Data: map[string]any{"data": data}}
}

func XML(data string) message.Segment {
	return message.Segment{Type: "xml", Data: map[string]any{"data": data}}
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
