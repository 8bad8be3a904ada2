package anilist

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AnimeListBroadcast mirrors the UI's broadcast block; AniList only supplies
// the available-episode count.
type AnimeListBroadcast struct {
	DayOfTheWeek      string  `json:"dayOfTheWeek"`
	StartTime         string  `json:"startTime"`
	AvailableEpisodes *uint32 `json:"availableEpisodes,omitempty"`
}

// AnimeListItem is one list entry in the UI's domain shape.
type AnimeListItem struct {
	ID                    int64              `json:"id"`
	EntryID               int64              `json:"entryId"`
	Title                 string             `json:"title"`
	ImageURL              string             `json:"imageUrl"`
	Synopsis              string             `json:"synopsis"`
	AlternativeTitles     string             `json:"alternativeTitles"`
	Score                 float64            `json:"score"`
	Source                string             `json:"source"`
	Status                string             `json:"status"`
	TotalEpisodes         uint32             `json:"totalEpisodes"`
	Genres                string             `json:"genres"`
	StartSeason           string             `json:"startSeason"`
	StartDate             string             `json:"startDate"`
	Broadcast             AnimeListBroadcast `json:"broadcast"`
	Studios               string             `json:"studios"`
	MediaType             string             `json:"mediaType"`
	UserStatus            string             `json:"userStatus"`
	UserScore             uint32             `json:"userScore"`
	UserEpisodesWatched   uint32             `json:"userEpisodesWatched"`
	IsRewatching          bool               `json:"isRewatching"`
	UserComments          string             `json:"userComments"`
	UserNumTimesRewatched uint32             `json:"userNumTimesRewatched"`
	UserStartDate         *string            `json:"userStartDate,omitempty"`
	UserFinishDate        *string            `json:"userFinishDate,omitempty"`
	UpdatedAt             *string            `json:"updatedAt,omitempty"`
}

// SynchronizedAnimeList groups list entries by the UI's five shelves.
type SynchronizedAnimeList struct {
	Watching    []AnimeListItem `json:"watching"`
	Completed   []AnimeListItem `json:"completed"`
	OnHold      []AnimeListItem `json:"onHold"`
	Dropped     []AnimeListItem `json:"dropped"`
	PlanToWatch []AnimeListItem `json:"planToWatch"`
}

type userStatusKey int

const (
	statusWatching userStatusKey = iota
	statusCompleted
	statusOnHold
	statusDropped
	statusPlanToWatch
)

func userStatusFromAniList(status string) userStatusKey {
	switch status {
	case "CURRENT", "REPEATING":
		return statusWatching
	case "COMPLETED":
		return statusCompleted
	case "PAUSED":
		return statusOnHold
	case "DROPPED":
		return statusDropped
	default:
		return statusPlanToWatch
	}
}

func (k userStatusKey) String() string {
	switch k {
	case statusWatching:
		return "watching"
	case statusCompleted:
		return "completed"
	case statusOnHold:
		return "onHold"
	case statusDropped:
		return "dropped"
	default:
		return "planToWatch"
	}
}

func (k userStatusKey) push(result *SynchronizedAnimeList, item AnimeListItem) {
	switch k {
	case statusWatching:
		result.Watching = append(result.Watching, item)
	case statusCompleted:
		result.Completed = append(result.Completed, item)
	case statusOnHold:
		result.OnHold = append(result.OnHold, item)
	case statusDropped:
		result.Dropped = append(result.Dropped, item)
	default:
		result.PlanToWatch = append(result.PlanToWatch, item)
	}
}

// mapUserStatusToAniList converts the UI's status vocabulary to AniList's
// MediaListStatus enum.
func mapUserStatusToAniList(status string) (string, error) {
	switch status {
	case "watching":
		return "CURRENT", nil
	case "completed":
		return "COMPLETED", nil
	case "onHold", "on_hold":
		return "PAUSED", nil
	case "dropped":
		return "DROPPED", nil
	case "planToWatch", "plan_to_watch":
		return "PLANNING", nil
	default:
		return "", fmt.Errorf("invalid AniList status: %s", status)
	}
}

func normalizeText(value string) string {
	return strings.TrimSpace(value)
}

// formatUpperSnake renders an UPPER_SNAKE enum as words, e.g. "TV_SHORT" →
// "Tv Short". Known values get explicit mappings before falling back here.
func formatUpperSnake(value string) string {
	var builder strings.Builder
	for _, part := range strings.Split(value, "_") {
		if part == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		lower := strings.ToLower(part)
		builder.WriteString(strings.ToUpper(lower[:1]))
		builder.WriteString(lower[1:])
	}

	if builder.Len() == 0 {
		return "Unknown"
	}
	return builder.String()
}

func mapSource(source string) string {
	switch source {
	case "":
		return "Unknown"
	case "ORIGINAL":
		return "Original"
	case "MANGA":
		return "Manga"
	case "LIGHT_NOVEL":
		return "Light Novel"
	case "VISUAL_NOVEL":
		return "Visual Novel"
	case "VIDEO_GAME":
		return "Video Game"
	case "GAME":
		return "Game"
	case "OTHER":
		return "Other"
	default:
		return formatUpperSnake(source)
	}
}

func mapStatus(status string) string {
	switch status {
	case "":
		return "Unknown"
	case "FINISHED":
		return "Finished Airing"
	case "NOT_YET_RELEASED":
		return "Not Yet Aired"
	case "RELEASING":
		return "Currently Airing"
	default:
		return formatUpperSnake(status)
	}
}

func mapMediaType(mediaType string) string {
	switch mediaType {
	case "":
		return "Unknown"
	case "TV":
		return "TV"
	case "TV_SHORT":
		return "TV Short"
	case "MOVIE":
		return "Movie"
	case "SPECIAL":
		return "Special"
	case "OVA":
		return "OVA"
	case "ONA":
		return "ONA"
	case "MUSIC":
		return "Music"
	case "MANGA":
		return "Manga"
	case "NOVEL":
		return "Novel"
	case "ONE_SHOT":
		return "One Shot"
	case "ANIME":
		return "Anime"
	default:
		return formatUpperSnake(mediaType)
	}
}

func joinGenres(genres []string) string {
	var values []string
	for _, genre := range genres {
		name := normalizeText(genre)
		if name == "" {
			continue
		}
		duplicate := false
		for _, existing := range values {
			if existing == name {
				duplicate = true
				break
			}
		}
		if !duplicate {
			values = append(values, name)
		}
	}

	if len(values) == 0 {
		return "Unknown"
	}
	return strings.Join(values, ", ")
}

func formatStartSeason(season string, seasonYear *uint32) string {
	seasonPart := ""
	if season != "" {
		seasonPart = formatUpperSnake(season)
	}

	switch {
	case seasonPart != "" && seasonYear != nil:
		return fmt.Sprintf("%s %d", seasonPart, *seasonYear)
	case seasonPart != "":
		return seasonPart
	case seasonYear != nil:
		return strconv.FormatUint(uint64(*seasonYear), 10)
	default:
		return "Unknown"
	}
}

// formatFuzzyDate renders a complete fuzzy date as YYYY-MM-DD; partial dates
// are dropped.
func formatFuzzyDate(date *fuzzyDate) *string {
	if date == nil || date.Year == nil || date.Month == nil || date.Day == nil {
		return nil
	}
	if *date.Month == 0 || *date.Day == 0 {
		return nil
	}
	formatted := fmt.Sprintf("%04d-%02d-%02d", *date.Year, *date.Month, *date.Day)
	return &formatted
}

// parseFuzzyDateInput parses a YYYY-MM-DD string into AniList's FuzzyDateInput.
func parseFuzzyDateInput(value *string, fieldName string) (*fuzzyDateInput, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}

	invalid := fmt.Errorf("invalid %s: expected YYYY-MM-DD", fieldName)

	segments := strings.Split(trimmed, "-")
	if len(segments) != 3 {
		return nil, invalid
	}
	year, err := strconv.Atoi(segments[0])
	if err != nil {
		return nil, invalid
	}
	month, err := strconv.Atoi(segments[1])
	if err != nil {
		return nil, invalid
	}
	day, err := strconv.Atoi(segments[2])
	if err != nil {
		return nil, invalid
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil, invalid
	}

	return &fuzzyDateInput{Year: year, Month: month, Day: day}, nil
}

// normalizeScore clamps AniList's float score into the UI's integer scale.
func normalizeScore(value *float64) uint32 {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) || *value <= 0 {
		return 0
	}
	if *value >= float64(math.MaxUint32) {
		return math.MaxUint32
	}
	return uint32(math.Round(*value))
}

func pickTitle(title *mediaTitle) string {
	if title == nil {
		return "Unknown"
	}
	for _, candidate := range []string{title.English, title.Romaji, title.Native} {
		if normalized := normalizeText(candidate); normalized != "" {
			return normalized
		}
	}
	return "Unknown"
}

func buildAlternativeTitles(title *mediaTitle, primary string) string {
	if title == nil {
		return "Unknown"
	}

	var parts []string
	for _, candidate := range []string{title.English, title.Romaji, title.Native} {
		normalized := normalizeText(candidate)
		if normalized == "" || normalized == primary {
			continue
		}
		duplicate := false
		for _, existing := range parts {
			if existing == normalized {
				duplicate = true
				break
			}
		}
		if !duplicate {
			parts = append(parts, normalized)
		}
	}

	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, ", ")
}

func joinStudioNames(studios *mediaStudios) string {
	if studios == nil {
		return "Unknown"
	}
	for _, studio := range studios.Nodes {
		if name := normalizeText(studio.Name); name != "" {
			return name
		}
	}
	return "Unknown"
}

// mapMediaToDomain flattens one AniList media + list entry into the UI shape.
func mapMediaToDomain(media *listMedia, entry *mediaListEntry, statusKey userStatusKey) AnimeListItem {
	title := pickTitle(media.Title)

	var availableEpisodes *uint32
	if media.NextAiringEpisode != nil && media.NextAiringEpisode.Episode > 0 {
		aired := media.NextAiringEpisode.Episode - 1
		availableEpisodes = &aired
	} else if media.Episodes != nil {
		availableEpisodes = media.Episodes
	}

	imageURL := ""
	if media.CoverImage != nil {
		if media.CoverImage.ExtraLarge != "" {
			imageURL = media.CoverImage.ExtraLarge
		} else {
			imageURL = media.CoverImage.Large
		}
	}

	synopsis := media.Description
	if synopsis == "" {
		synopsis = "No synopsis available."
	}

	meanScore := float64(0)
	if media.MeanScore != nil {
		meanScore = float64(*media.MeanScore)
	}

	totalEpisodes := uint32(0)
	if media.Episodes != nil {
		totalEpisodes = *media.Episodes
	}

	mediaType := media.Format
	if mediaType == "" {
		mediaType = media.Type
	}

	progress := uint32(0)
	if entry.Progress != nil {
		progress = *entry.Progress
	}
	repeat := uint32(0)
	if entry.Repeat != nil {
		repeat = *entry.Repeat
	}

	return AnimeListItem{
		ID:                    media.ID,
		EntryID:               entry.ID,
		Title:                 title,
		ImageURL:              imageURL,
		Synopsis:              synopsis,
		AlternativeTitles:     buildAlternativeTitles(media.Title, title),
		Score:                 meanScore,
		Source:                mapSource(media.Source),
		Status:                mapStatus(media.Status),
		TotalEpisodes:         totalEpisodes,
		Genres:                joinGenres(media.Genres),
		StartSeason:           formatStartSeason(media.Season, media.SeasonYear),
		StartDate:             derefString(formatFuzzyDate(media.StartDate)),
		Broadcast:             AnimeListBroadcast{AvailableEpisodes: availableEpisodes},
		Studios:               joinStudioNames(media.Studios),
		MediaType:             mapMediaType(mediaType),
		UserStatus:            statusKey.String(),
		UserScore:             normalizeScore(entry.Score),
		UserEpisodesWatched:   progress,
		IsRewatching:          repeat > 0,
		UserComments:          entry.Notes,
		UserNumTimesRewatched: repeat,
		UserStartDate:         formatFuzzyDate(entry.StartedAt),
		UserFinishDate:        formatFuzzyDate(entry.CompletedAt),
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
