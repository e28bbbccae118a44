// Package mention resolves @-mentions in a message body against a group's
// membership snapshot, and decides how a message is emphasized for a viewer.
//
// Both functions are pure: callers pass the membership they read inside
// their own transaction.
package mention

import (
	"strings"
	"unicode"

	"github.com/mmynk/zehem/internal/models"
)

const (
	// EveryoneToken notifies every member when sent by an owner or admin.
	EveryoneToken = "@everyone"

	// EmphasisWords is how many leading words of a mentioning message are
	// emphasized.
	EmphasisWords = 20
)

// Result is the outcome of resolving one message body.
type Result struct {
	// Targets are the mentioned account IDs in first-seen order, without
	// duplicates and never including the sender.
	Targets []string

	// MentionAll is set when an owner or admin's body contains
	// EveryoneToken anywhere, punctuation included.
	MentionAll bool
}

// Resolve computes the mention targets of body sent by senderID to a group
// whose current members are members.
func Resolve(body, senderID string, members []*models.Membership) Result {
	tokens := strings.Fields(body)

	var sender *models.Membership
	for _, m := range members {
		if m.AccountID == senderID {
			sender = m
			break
		}
	}

	if sender != nil && sender.Role.Elevated() && strings.Contains(body, EveryoneToken) {
		res := Result{MentionAll: true}
		for _, m := range members {
			if m.AccountID != senderID {
				res.Targets = append(res.Targets, m.AccountID)
			}
		}
		return res
	}

	byName := make(map[string]string, len(members))
	for _, m := range members {
		if m.DisplayName != "" {
			byName[m.DisplayName] = m.AccountID
		}
	}

	var res Result
	seen := make(map[string]bool)
	for _, tok := range tokens {
		name, ok := strings.CutPrefix(tok, "@")
		if !ok || name == "" {
			continue
		}
		id, ok := byName[name]
		if !ok || id == senderID || seen[id] {
			continue
		}
		seen[id] = true
		res.Targets = append(res.Targets, id)
	}
	return res
}

// Display is a message body split for rendering.
type Display struct {
	// Emphasized holds the leading words to render with emphasis. Empty when
	// the message does not concern the viewer.
	Emphasized string

	// Rest is the remainder of the body, rendered normally.
	Rest string
}

// Emphasis splits body for a viewer named viewerName. When the message is
// mention-all or contains "@"+viewerName, the first EmphasisWords words are
// emphasized. Whitespace inside both parts is kept as written.
func Emphasis(body string, mentionAll bool, viewerName string) Display {
	if !mentionAll && (viewerName == "" || !strings.Contains(body, "@"+viewerName)) {
		return Display{Rest: body}
	}
	body = strings.TrimLeftFunc(body, unicode.IsSpace)
	end := wordsEnd(body, EmphasisWords)
	return Display{
		Emphasized: body[:end],
		Rest:       strings.TrimLeftFunc(body[end:], unicode.IsSpace),
	}
}

// wordsEnd returns the byte offset just past the n-th whitespace-separated
// word of s, or len(s) when s has fewer words.
func wordsEnd(s string, n int) int {
	count := 0
	inWord := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				if count == n {
					return i
				}
			}
			continue
		}
		if !inWord {
			inWord = true
			count++
		}
	}
	return len(s)
}
