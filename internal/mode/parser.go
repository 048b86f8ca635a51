package mode

import "strings"

// Phrase lists for recognizing mode commands in chat. Matching is
// case-insensitive substring matching; evaluation order is significant:
// chat before normal before yolo, so "disable yolo mode" resolves to
// NORMAL rather than YOLO.
var (
	chatPhrases = []string{
		"enable chat mode",
		"switch to chat mode",
		"activate chat mode",
		"chat mode",
		"read only mode",
		"read-only mode",
	}
	normalPhrases = []string{
		"enable normal mode",
		"switch to normal mode",
		"activate normal mode",
		"normal mode",
		"disable yolo mode",
		"disable yolo",
		"exit yolo mode",
	}
	yoloPhrases = []string{
		"enable yolo mode",
		"switch to yolo mode",
		"activate yolo mode",
		"yolo mode",
		"yolo",
	}
	queryPhrases = []string{
		"what mode",
		"which mode",
		"current mode",
		"what's my mode",
		"what is my mode",
		"mode status",
	}
)

// ParseCommand maps a user utterance to a mode switch. The second return is
// false when the text is not a mode command.
func ParseCommand(text string) (Mode, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, phrase := range chatPhrases {
		if strings.Contains(lower, phrase) {
			return ModeChat, true
		}
	}
	for _, phrase := range normalPhrases {
		if strings.Contains(lower, phrase) {
			return ModeNormal, true
		}
	}
	for _, phrase := range yoloPhrases {
		if strings.Contains(lower, phrase) {
			return ModeYolo, true
		}
	}
	return "", false
}

// IsQuery reports whether the text asks about the current mode.
func IsQuery(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range queryPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
