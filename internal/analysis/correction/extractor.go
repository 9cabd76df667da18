package correction

import (
	"regexp"
	"strings"
)

// Note 是导师回复中的一条纠错提示。
type Note struct {
	Original    string `json:"original"`
	Suggested   string `json:"suggested"`
	Explanation string `json:"explanation,omitempty"`
}

// 引号内允许出现撇号（don't），因此闭合引号必须紧跟标点或空白。
var notePattern = regexp.MustCompile(
	`(?i)you said\s+['"‘“](.+?)['"’”],?\s+but\s+(?:it would be (?:better|more natural) to say|you (?:could|should|can) say|a better way to say it is)\s+['"‘“](.+?)['"’”][.!,]?(?:\s|$)`,
)

var sentenceEnd = regexp.MustCompile(`^[^\n]*?[.!?](?:\s|$)`)

// Extract 从回复中提取全部纠错提示，按出现顺序返回；没有时返回 nil。
func Extract(reply string) []Note {
	matches := notePattern.FindAllStringSubmatchIndex(reply, -1)
	if len(matches) == 0 {
		return nil
	}

	notes := make([]Note, 0, len(matches))
	for i, m := range matches {
		original := clean(reply[m[2]:m[3]])
		suggested := clean(reply[m[4]:m[5]])
		if original == "" || suggested == "" || strings.EqualFold(original, suggested) {
			continue
		}

		// 解释取紧随其后的一句话，不越过下一条提示
		note := Note{Original: original, Suggested: suggested}
		if reply[m[1]-1] != '\n' {
			end := len(reply)
			if i+1 < len(matches) {
				end = matches[i+1][0]
			}
			note.Explanation = explanation(reply[m[1]:end])
		}
		notes = append(notes, note)
	}
	if len(notes) == 0 {
		return nil
	}
	return notes
}

func explanation(tail string) string {
	tail = strings.TrimLeft(tail, " \t")
	if tail == "" || strings.HasPrefix(tail, "\n") {
		return ""
	}
	if loc := sentenceEnd.FindStringIndex(tail); loc != nil {
		return strings.TrimSpace(tail[:loc[1]])
	}
	line, _, _ := strings.Cut(tail, "\n")
	return strings.TrimSpace(line)
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
