package playback

import (
	"sort"
	"strings"
)

// enumerateProcesses is swapped out in tests to feed synthetic process tables.
var enumerateProcesses = listProcesses

// DetectionCycleResult is the outcome of one pass over the process table.
type DetectionCycleResult struct {
	Detections        []AnimePlaybackDetection
	MatchedPlayerPIDs map[uint32]struct{}
}

// DetectPlayingAnime runs one detection cycle and returns the best candidate,
// or nil when nothing playable was found. Score ties go to the larger PID,
// the newest process.
func DetectPlayingAnime(request *DetectPlayingAnimeRequest) (*AnimePlaybackDetection, error) {
	selected := resolveSelectedPlayers(request)
	cycle, err := collectDetectionCycleResult(selected)
	if err != nil {
		return nil, err
	}

	var best *AnimePlaybackDetection
	var bestScore int
	for i := range cycle.Detections {
		candidate := &cycle.Detections[i]
		score := scoreDetection(candidate)
		if best != nil && (score < bestScore || (score == bestScore && candidate.ProcessID <= best.ProcessID)) {
			continue
		}
		best = candidate
		bestScore = score
	}

	if best == nil {
		return nil, nil
	}
	detection := *best
	return &detection, nil
}

// collectDetectionCycleResult enumerates processes, matches them against the
// selected players, extracts a media source, and parses it. Candidates come
// back sorted by PID ascending.
func collectDetectionCycleResult(selected []Player) (DetectionCycleResult, error) {
	processes, err := enumerateProcesses()
	if err != nil {
		return DetectionCycleResult{}, err
	}

	result := DetectionCycleResult{MatchedPlayerPIDs: make(map[uint32]struct{})}
	for _, process := range processes {
		player, ok := matchProcessToPlayer(process, selected)
		if !ok {
			continue
		}

		result.MatchedPlayerPIDs[process.PID] = struct{}{}

		source, ok := extractMediaSource(player, process.Args, process.CommandLine)
		if !ok {
			continue
		}

		parsed := ParseAnimeFromSource(source)
		if parsed == nil {
			continue
		}

		result.Detections = append(result.Detections, AnimePlaybackDetection{
			Player:     player,
			ProcessID:  process.PID,
			Source:     source,
			AnimeTitle: parsed.AnimeTitle,
			Episode:    parsed.Episode,
		})
	}

	sort.Slice(result.Detections, func(i, j int) bool {
		return result.Detections[i].ProcessID < result.Detections[j].ProcessID
	})

	return result, nil
}

func resolveSelectedPlayers(request *DetectPlayingAnimeRequest) []Player {
	var players []Player
	if request != nil {
		players = request.Players
	}
	if len(players) == 0 {
		return AllPlayers()
	}

	unique := dedupPlayers(players)
	if len(unique) == 0 {
		return AllPlayers()
	}
	return unique
}

// scoreDetection ranks a candidate: 3 points for a parsed episode, plus 2 for
// a title of six or more characters, 1 for three to five.
func scoreDetection(detection *AnimePlaybackDetection) int {
	score := 0
	if detection.Episode != nil {
		score += 3
	}

	switch titleLen := len([]rune(detection.AnimeTitle)); {
	case titleLen >= 6:
		score += 2
	case titleLen >= 3:
		score++
	}

	return score
}

// matchProcessToPlayer finds the first selected player whose alias matches
// the process name, the executable token, or any argv element.
func matchProcessToPlayer(process ProcessSnapshot, selected []Player) (Player, bool) {
	executable := ""
	if len(process.Args) > 0 {
		executable = process.Args[0]
	} else if parts := splitCommandLine(process.CommandLine); len(parts) > 0 {
		executable = parts[0]
	}

	for _, player := range selected {
		if player.MatchesProcessName(process.Name) || player.MatchesProcessName(executable) {
			return player, true
		}
		for _, arg := range process.Args {
			if player.MatchesProcessName(arg) {
				return player, true
			}
		}
	}

	return "", false
}

// extractMediaSource picks the last argv token that normalises to a playable
// media source, after dropping the executable and player options.
func extractMediaSource(player Player, args []string, commandLine string) (string, bool) {
	if len(args) == 0 {
		args = splitCommandLine(commandLine)
	}
	if len(args) == 0 {
		return "", false
	}

	if player.MatchesProcessName(args[0]) {
		args = args[1:]
	}

	candidate := ""
	found := false
	for _, arg := range args {
		value := strings.TrimSpace(arg)
		if value == "" || isPlayerOption(player, value) {
			continue
		}
		if source, ok := normalizeSourceArg(value); ok {
			candidate = source
			found = true
		}
	}

	return candidate, found
}

// isPlayerOption filters option-style tokens. MPC variants use slash options
// on Windows, so leading-slash tokens are dropped for them unless they look
// like a drive-letter path or a URL.
func isPlayerOption(player Player, value string) bool {
	if value == "--" || (len(value) > 0 && value[0] == '-') {
		return true
	}

	switch player {
	case PlayerMPCHC, PlayerMPCBE:
		return len(value) > 0 && value[0] == '/' && !looksLikeWindowsPath(value) && !isURLSource(value)
	default:
		return false
	}
}
