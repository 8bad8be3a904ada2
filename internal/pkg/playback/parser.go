package playback

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var videoExtensions = map[string]struct{}{
	"mkv": {}, "mp4": {}, "avi": {}, "mov": {}, "wmv": {}, "flv": {},
	"webm": {}, "m4v": {}, "ts": {}, "m2ts": {}, "mpg": {}, "mpeg": {}, "ogm": {},
}

// Numeric tokens that commonly represent video resolution, not an episode
// number. Used by the plausibility check to avoid false positives.
var resolutionNumbers = map[uint32]struct{}{
	360: {}, 480: {}, 540: {}, 576: {}, 720: {}, 1080: {}, 1440: {},
	2160: {}, 2880: {}, 3840: {}, 4096: {}, 4320: {}, 5120: {}, 7680: {},
}

var (
	leadingGroupRegex       = regexp.MustCompile(`^(?:\[[^\]]+\]\s*)+`)
	bracketGroupRegex       = regexp.MustCompile(`[\[\({][^\])}]*[\])}]`)
	noiseTokenRegex         = regexp.MustCompile(`(?i)\b(?:\d{3,4}p|10bit|8bit|x264|x265|h264|h265|hevc|av1|aac(?:2\.0)?|flac|opus|ddp(?:5\.1)?|blu[- ]?ray|bdrip|webrip|web[- ]?dl|dvdrip|remux|proper|repack|vostfr|raw|sub(?:bed|s)?|multi|dual[- ]?audio)\b`)
	yearTokenRegex          = regexp.MustCompile(`\b(?:19\d{2}|20\d{2}|2100)\b`)
	hyphenSeparatorRegex    = regexp.MustCompile(`-{2,}`)
	collapseWhitespaceRegex = regexp.MustCompile(`\s+`)

	episodeSxERegex      = regexp.MustCompile(`(?i)\bS\d{1,2}E(?P<episode>\d{1,4})\b`)
	episodeExplicitRegex = regexp.MustCompile(`(?i)\bE(?:P|PISODE)?[ ._-]?(?P<episode>\d{1,4})\b`)
	episodeJapaneseRegex = regexp.MustCompile(`第\s*(?P<episode>\d{1,4})\s*[話话]`)
	episodeDashRegex     = regexp.MustCompile(`(?i)\s-\s(?P<episode>\d{1,4})(?:v\d+)?\b`)
	episodeBracketRegex  = regexp.MustCompile(`(?i)\[(?P<episode>\d{1,4})(?:v\d+)?\]`)
	fallbackNumericRegex = regexp.MustCompile(`(?P<episode>\d{1,4})(?:v\d+)?`)
)

// ParsedAnime is the parser's output for one media source.
type ParsedAnime struct {
	AnimeTitle string
	Episode    *uint32
}

// ParseAnimeFromSource extracts an anime title and, when present, an episode
// number from a video file path or URL. Returns nil when no usable title
// survives cleanup.
func ParseAnimeFromSource(source string) *ParsedAnime {
	raw, ok := extractSourceTitle(source)
	if !ok {
		return nil
	}

	normalized := normalizeTitleTokens(raw)
	if normalized == "" {
		return nil
	}

	episode, withoutEpisode := extractEpisodeFromTitle(normalized)

	cleaned := leadingGroupRegex.ReplaceAllString(withoutEpisode, " ")
	cleaned = bracketGroupRegex.ReplaceAllString(cleaned, " ")
	cleaned = noiseTokenRegex.ReplaceAllString(cleaned, " ")
	// Standalone years are release metadata, not part of the title.
	cleaned = yearTokenRegex.ReplaceAllString(cleaned, " ")
	cleaned = hyphenSeparatorRegex.ReplaceAllString(cleaned, " ")
	cleaned = collapseWhitespaceRegex.ReplaceAllString(strings.TrimSpace(cleaned), " ")

	title := strings.TrimFunc(cleaned, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	if title == "" {
		return nil
	}

	return &ParsedAnime{AnimeTitle: title, Episode: episode}
}

// normalizeSourceArg decides whether a command-line token is a playable media
// source: a known URL scheme, or a path whose extension (query and fragment
// stripped) is a video extension.
func normalizeSourceArg(value string) (string, bool) {
	trimmed := strings.TrimSpace(strings.Trim(strings.Trim(value, `"`), `'`))
	if trimmed == "" {
		return "", false
	}

	if isURLSource(trimmed) {
		return trimmed, true
	}

	sanitized := trimmed
	if idx := strings.IndexByte(sanitized, '?'); idx >= 0 {
		sanitized = sanitized[:idx]
	}
	if idx := strings.IndexByte(sanitized, '#'); idx >= 0 {
		sanitized = sanitized[:idx]
	}

	if _, ok := videoExtensions[strings.ToLower(pathExtension(sanitized))]; ok {
		return trimmed, true
	}
	return "", false
}

func isURLSource(value string) bool {
	normalized := strings.ToLower(value)
	for _, scheme := range []string{"http://", "https://", "ftp://", "rtsp://", "file://"} {
		if strings.HasPrefix(normalized, scheme) {
			return true
		}
	}
	return false
}

// looksLikeWindowsPath reports whether value starts with a drive-letter
// prefix such as `C:\` or `C:/`.
func looksLikeWindowsPath(value string) bool {
	if len(value) < 3 || value[1] != ':' {
		return false
	}
	if value[2] != '\\' && value[2] != '/' {
		return false
	}
	ch := value[0]
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

// extractSourceTitle reduces a path or URL to its decoded filename stem.
func extractSourceTitle(source string) (string, bool) {
	trimmed := strings.TrimSpace(strings.Trim(strings.Trim(strings.TrimSpace(source), `"`), `'`))
	if trimmed == "" {
		return "", false
	}

	if idx := strings.IndexByte(trimmed, '?'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if idx := strings.IndexByte(trimmed, '#'); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	path := strings.ReplaceAll(trimmed, `\`, "/")
	filename := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		filename = path[idx+1:]
	}

	stem := filename
	if idx := strings.LastIndexByte(filename, '.'); idx > 0 {
		stem = filename[:idx]
	}

	decoded := strings.TrimSpace(decodePercentEncoded(stem))
	if decoded == "" {
		return "", false
	}
	return decoded, true
}

func pathExtension(value string) string {
	base := value
	if idx := strings.LastIndexAny(base, `\/`); idx >= 0 {
		base = base[idx+1:]
	}
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	return base[idx+1:]
}

func normalizeTitleTokens(value string) string {
	replaced := strings.NewReplacer(".", " ", "_", " ").Replace(value)
	return collapseWhitespaceRegex.ReplaceAllString(replaced, " ")
}

// extractEpisodeFromTitle tries the episode patterns in priority order,
// stopping at the first plausible match, then falls back to a right-to-left
// numeric scan. The matched span is blanked out of the returned title.
func extractEpisodeFromTitle(title string) (*uint32, string) {
	for _, re := range []*regexp.Regexp{
		episodeSxERegex,
		episodeExplicitRegex,
		episodeJapaneseRegex,
		episodeDashRegex,
		episodeBracketRegex,
	} {
		if episode, start, end, ok := matchEpisodeWithRegex(re, title); ok {
			return &episode, title[:start] + " " + title[end:]
		}
	}

	if episode, start, end, ok := fallbackEpisodeFromNumbers(title); ok {
		return &episode, title[:start] + " " + title[end:]
	}

	return nil, title
}

func matchEpisodeWithRegex(re *regexp.Regexp, title string) (uint32, int, int, bool) {
	match := re.FindStringSubmatchIndex(title)
	if match == nil {
		return 0, 0, 0, false
	}

	group := re.SubexpIndex("episode")
	if group < 0 || match[2*group] < 0 {
		return 0, 0, 0, false
	}

	episode, err := strconv.ParseUint(title[match[2*group]:match[2*group+1]], 10, 32)
	if err != nil || !isPlausibleEpisode(uint32(episode)) {
		return 0, 0, 0, false
	}

	return uint32(episode), match[0], match[1], true
}

func fallbackEpisodeFromNumbers(title string) (uint32, int, int, bool) {
	matches := fallbackNumericRegex.FindAllStringSubmatchIndex(title, -1)
	group := fallbackNumericRegex.SubexpIndex("episode")

	for i := len(matches) - 1; i >= 0; i-- {
		match := matches[i]
		if !isTokenBoundary(title, match[0], match[1]) {
			continue
		}

		episode, err := strconv.ParseUint(title[match[2*group]:match[2*group+1]], 10, 32)
		if err != nil || !isPlausibleEpisode(uint32(episode)) {
			continue
		}

		return uint32(episode), match[0], match[1], true
	}

	return 0, 0, 0, false
}

// isTokenBoundary rejects numbers glued to alphanumeric neighbours, e.g. the
// "264" in "x264" or digits inside a longer number.
func isTokenBoundary(value string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(value[:start])
		if prev < unicode.MaxASCII && (unicode.IsDigit(prev) || unicode.IsLetter(prev)) {
			return false
		}
	}
	if end < len(value) {
		next, _ := utf8.DecodeRuneInString(value[end:])
		if next < unicode.MaxASCII && (unicode.IsDigit(next) || unicode.IsLetter(next)) {
			return false
		}
	}
	return true
}

func isPlausibleEpisode(value uint32) bool {
	if value == 0 || value > 5000 {
		return false
	}
	if _, ok := resolutionNumbers[value]; ok {
		return false
	}
	return value < 1900 || value > 2100
}

// decodePercentEncoded resolves %HH escapes and treats '+' as space. Invalid
// escapes pass through untouched.
func decodePercentEncoded(value string) string {
	out := make([]byte, 0, len(value))
	for i := 0; i < len(value); {
		if value[i] == '%' && i+2 < len(value) {
			hi, okHi := hexNibble(value[i+1])
			lo, okLo := hexNibble(value[i+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				i += 3
				continue
			}
		}
		if value[i] == '+' {
			out = append(out, ' ')
		} else {
			out = append(out, value[i])
		}
		i++
	}
	return string(out)
}

func hexNibble(ch byte) (byte, bool) {
	switch {
	case '0' <= ch && ch <= '9':
		return ch - '0', true
	case 'a' <= ch && ch <= 'f':
		return ch - 'a' + 10, true
	case 'A' <= ch && ch <= 'F':
		return ch - 'A' + 10, true
	default:
		return 0, false
	}
}
