package v11

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Message helpers: pure functions over messages and plain text used to
// interpret common user replies (confirmation, cancellation, numbers).

// ExtractImageURLs returns the url attribute of every image segment that
// carries one, in order.
func ExtractImageURLs(m message.Message) []string {
	var urls []string
	for _, seg := range m {
		if seg.Type != "image" {
			continue
		}
		if url, ok := seg.Data["url"].(string); ok {
			urls = append(urls, url)
		}
	}
	return urls
}

var numbersRegexp = regexp.MustCompile(`[+-]?(\d*\.?\d+|\d+\.?\d*)`)

// ExtractNumbers returns every decimal number found in the message's plain
// text, in order.
func ExtractNumbers(m message.Message) []float64 {
	var out []float64
	for _, matched := range numbersRegexp.FindAllString(m.ExtractPlainText(), -1) {
		n, err := strconv.ParseFloat(matched, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

var chineseAgreeWords = map[string]bool{
	"要": true, "用": true, "是": true, "好": true, "对": true, "嗯": true,
	"行": true, "ok": true, "okay": true, "yeah": true, "yep": true,
	"当真": true, "当然": true, "必须": true, "可以": true, "肯定": true,
	"没错": true, "确定": true, "确认": true,
}

var chineseDeclineWords = map[string]bool{
	"不": true, "不要": true, "不用": true, "不是": true, "否": true,
	"不好": true, "不对": true, "不行": true, "别": true, "no": true,
	"nono": true, "nonono": true, "nope": true, "不ok": true,
	"不可以": true, "不能": true,
}

const chineseTrailingChars = ",.!?~，。！？～了的呢吧呀啊呗啦"

// ConvertChineseToBool interprets text as a Chinese (or casual English)
// yes/no answer. It returns (true, true) for agreement, (false, true) for
// refusal, and ok=false when the text is neither.
func ConvertChineseToBool(text string) (value, ok bool) {
	text = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(text)), " ", "")
	text = strings.TrimRight(text, chineseTrailingChars)
	if chineseAgreeWords[text] {
		return true, true
	}
	if chineseDeclineWords[text] {
		return false, true
	}
	return false, false
}

// RemoveEmptyLines drops empty lines from text and joins the rest without
// separators. With includeStripped, lines containing only whitespace are
// dropped too.
func RemoveEmptyLines(text string, includeStripped bool) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		keep := line != ""
		if includeStripped {
			keep = strings.TrimSpace(line) != ""
		}
		if keep {
			sb.WriteString(line)
		}
	}
	return sb.String()
}

var (
	cancellationWords  = []string{"算", "别", "不", "停", "取消"}
	cancellationRegex1 = regexp.MustCompile(`^那?[算别不停][\p{L}\p{N}_]{0,3}了?吧?$`)
	cancellationRegex2 = regexp.MustCompile(`^那?(?:[给帮]我)?取消了?吧?$`)
)

// IsCancellation reports whether text reads as a Chinese cancellation
// phrase ("算了", "不要了", "取消吧", ...).
func IsCancellation(text string) bool {
	hasKeyword := false
	for _, kw := range cancellationWords {
		if strings.Contains(text, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}
	return cancellationRegex1.MatchString(text) || cancellationRegex2.MatchString(text)
}
