package core

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adamavenir/parley/internal/types"
)

// MentionLimit caps the number of ranked candidates returned.
const MentionLimit = 12

var mentionRe = regexp.MustCompile(`[@#]([\p{L}\p{N}_][\p{L}\p{N}_.\-]*)`)

// MentionTrigger locates a partial "@" token under the caret.
type MentionTrigger struct {
	// Start is the rune offset of the "@".
	Start int
	// Query is the partial token between the "@" and the caret.
	Query string
}

// FindMentionTrigger reports whether the caret sits inside an "@" token that
// starts the text or follows whitespace. Offsets are in runes.
func FindMentionTrigger(text string, caret int) (MentionTrigger, bool) {
	runes := []rune(text)
	if caret < 0 {
		caret = 0
	}
	if caret > len(runes) {
		caret = len(runes)
	}
	for i := caret - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return MentionTrigger{}, false
		}
		if runes[i] != '@' {
			continue
		}
		if i > 0 && !unicode.IsSpace(runes[i-1]) {
			return MentionTrigger{}, false
		}
		return MentionTrigger{Start: i, Query: string(runes[i+1 : caret])}, true
	}
	return MentionTrigger{}, false
}

// CandidatesFor builds the mention snapshot scoped to a conversation.
func CandidatesFor(conv types.Conversation, self types.Member) []types.MentionCandidate {
	switch conv.Kind {
	case types.ConversationDirect:
		return []types.MentionCandidate{{
			Kind:     types.MentionPerson,
			ID:       conv.ID,
			Label:    conv.Name,
			Presence: conv.Presence,
			Avatar:   conv.Avatar,
		}}
	case types.ConversationSelf:
		if self.ID == "" {
			return nil
		}
		return []types.MentionCandidate{personCandidate(self)}
	}

	candidates := make([]types.MentionCandidate, 0, len(conv.Members)+len(conv.Roles)+len(conv.Channels))
	for _, member := range conv.Members {
		candidates = append(candidates, personCandidate(member))
	}
	for _, role := range conv.Roles {
		candidates = append(candidates, types.MentionCandidate{
			Kind:  types.MentionRole,
			ID:    role.ID,
			Label: role.Name,
		})
	}
	for _, channel := range conv.Channels {
		candidates = append(candidates, types.MentionCandidate{
			Kind:  types.MentionChannel,
			ID:    channel.ID,
			Label: channel.Name,
		})
	}
	return candidates
}

func personCandidate(member types.Member) types.MentionCandidate {
	label := member.Name
	if label == "" {
		label = member.ID
	}
	return types.MentionCandidate{
		Kind:     types.MentionPerson,
		ID:       member.ID,
		Label:    label,
		Presence: member.Presence,
		Avatar:   member.Avatar,
	}
}

type rankedCandidate struct {
	candidate types.MentionCandidate
	internal  bool
}

// ResolveMentions filters candidates by a case-insensitive substring match on
// label and id, then ranks them: matches at position 0 first, then people,
// roles, channels, then label order. At most MentionLimit are returned.
func ResolveMentions(candidates []types.MentionCandidate, query string) []types.MentionCandidate {
	needle := strings.ToLower(query)
	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		pos := matchPosition(candidate, needle)
		if pos < 0 {
			continue
		}
		ranked = append(ranked, rankedCandidate{candidate: candidate, internal: pos > 0})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.internal != b.internal {
			return !a.internal
		}
		if ka, kb := kindRank(a.candidate.Kind), kindRank(b.candidate.Kind); ka != kb {
			return ka < kb
		}
		return strings.ToLower(a.candidate.Label) < strings.ToLower(b.candidate.Label)
	})

	if len(ranked) > MentionLimit {
		ranked = ranked[:MentionLimit]
	}
	out := make([]types.MentionCandidate, len(ranked))
	for i, entry := range ranked {
		out[i] = entry.candidate
	}
	return out
}

// matchPosition returns the best match offset in the label or id, or -1.
func matchPosition(candidate types.MentionCandidate, needle string) int {
	best := -1
	for _, hay := range []string{candidate.Label, candidate.ID} {
		idx := strings.Index(strings.ToLower(hay), needle)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
		}
	}
	return best
}

func kindRank(kind types.MentionKind) int {
	switch kind {
	case types.MentionPerson:
		return 0
	case types.MentionRole:
		return 1
	case types.MentionChannel:
		return 2
	}
	return 3
}

// MentionText returns the canonical inserted text for a candidate.
func MentionText(candidate types.MentionCandidate) string {
	if candidate.Kind == types.MentionChannel {
		return "#" + candidate.Label
	}
	return "@" + candidate.Label
}

// ApplyMention replaces the partial token from the trigger to the caret with
// the candidate's mention text plus a trailing space. It returns the new text
// and the caret position just after the inserted space.
func ApplyMention(text string, trigger MentionTrigger, caret int, candidate types.MentionCandidate) (string, int) {
	runes := []rune(text)
	if caret > len(runes) {
		caret = len(runes)
	}
	start := trigger.Start
	if start < 0 || start > caret {
		start = caret
	}
	insert := []rune(MentionText(candidate) + " ")

	out := make([]rune, 0, len(runes)-(caret-start)+len(insert))
	out = append(out, runes[:start]...)
	out = append(out, insert...)
	out = append(out, runes[caret:]...)
	return string(out), start + len(insert)
}

// ExtractMentions returns the labels mentioned in body that are present in
// known (lowercased labels). With a nil known set every token is returned.
func ExtractMentions(body string, known map[string]struct{}) []string {
	matches := mentionRe.FindAllStringSubmatchIndex(body, -1)
	mentions := make([]string, 0, len(matches))
	seen := map[string]struct{}{}

	for _, match := range matches {
		if len(match) < 4 {
			continue
		}
		start := match[0]
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(body[:start])
			if isAlphaNum(prev) {
				continue
			}
		}
		name := strings.TrimRight(body[match[2]:match[3]], ".-")
		key := strings.ToLower(name)
		if known != nil {
			if _, ok := known[key]; !ok {
				continue
			}
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		mentions = append(mentions, name)
	}
	return mentions
}

// MentionsUser reports whether body mentions the given label.
func MentionsUser(body, label string) bool {
	if label == "" {
		return false
	}
	known := map[string]struct{}{strings.ToLower(label): {}}
	return len(ExtractMentions(body, known)) > 0
}

func isAlphaNum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
