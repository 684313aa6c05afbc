// Package loop detects repeated messages in a conversation.
package loop

import (
	"strings"
	"unicode"
)

const (
	// PreGenerationThreshold flags a contact re-sending the same message.
	PreGenerationThreshold = 0.70
	// PostGenerationThreshold flags the model repeating a previous reply.
	PostGenerationThreshold = 0.95

	// PreGenerationWindow is how many recent system replies the inbound text is compared to.
	PreGenerationWindow = 2
	// PostGenerationWindow is how many recent system replies a generated reply is compared to.
	PostGenerationWindow = 3
)

// Similarity returns the longest-common-subsequence ratio of the normalized
// texts: 2*LCS / (len(a)+len(b)). Two empty texts are identical.
func Similarity(a, b string) float64 {
	ra := []rune(Normalize(a))
	rb := []rune(Normalize(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcs(ra, rb)) / float64(total)
}

// Normalize case-folds text and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}

// UserStuck reports whether inbound is close to any of the recent system replies.
func UserStuck(inbound string, recentReplies []string) bool {
	return anyAbove(inbound, recentReplies, PreGenerationWindow, PreGenerationThreshold)
}

// HistoryStuck reports whether the two most recent system replies already
// repeat each other. recentReplies is ordered newest first.
func HistoryStuck(recentReplies []string) bool {
	if len(recentReplies) < 2 {
		return false
	}
	a, b := recentReplies[0], recentReplies[1]
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	return Similarity(a, b) > PreGenerationThreshold
}

// ModelStuck reports whether a generated reply repeats one of the recent system replies.
func ModelStuck(reply string, recentReplies []string) bool {
	return anyAbove(reply, recentReplies, PostGenerationWindow, PostGenerationThreshold)
}

func anyAbove(text string, recent []string, window int, threshold float64) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if len(recent) > window {
		recent = recent[:window]
	}
	for _, r := range recent {
		if Similarity(text, r) > threshold {
			return true
		}
	}
	return false
}

func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
