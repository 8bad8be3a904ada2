package playback

import (
	"strings"
	"unicode"
)

const (
	DefaultPollIntervalMs uint64 = 2000
	MinPollIntervalMs     uint64 = 500
	MaxPollIntervalMs     uint64 = 60000
)

// dedupPlayers removes duplicates while preserving first-seen order.
func dedupPlayers(players []Player) []Player {
	seen := make(map[Player]struct{}, len(players))
	unique := make([]Player, 0, len(players))
	for _, player := range players {
		if _, ok := seen[player]; ok {
			continue
		}
		seen[player] = struct{}{}
		unique = append(unique, player)
	}
	return unique
}

func clampPollIntervalMs(value uint64) uint64 {
	if value < MinPollIntervalMs {
		return MinPollIntervalMs
	}
	if value > MaxPollIntervalMs {
		return MaxPollIntervalMs
	}
	return value
}

// normalizeProcessName reduces an executable reference to a comparable form:
// quotes trimmed, path prefix dropped, lowercased.
func normalizeProcessName(value string) string {
	trimmed := strings.TrimSpace(strings.Trim(value, `"`))
	if idx := strings.LastIndexAny(trimmed, `\/`); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return strings.ToLower(trimmed)
}

// splitCommandLine tokenises a command line. Single or double quotes bracket
// a token; whitespace separates tokens outside of quotes.
func splitCommandLine(value string) []string {
	var parts []string
	var current strings.Builder
	var quote rune

	for _, ch := range value {
		if quote != 0 {
			if ch == quote {
				quote = 0
			} else {
				current.WriteRune(ch)
			}
			continue
		}

		switch {
		case ch == '"' || ch == '\'':
			quote = ch
		case unicode.IsSpace(ch):
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
