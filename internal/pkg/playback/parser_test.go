package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFansubStyle(t *testing.T) {
	parsed := ParseAnimeFromSource(`[Group] Shingeki no Kyojin - 07 [1080p][HEVC].mkv`)
	require.NotNil(t, parsed)
	assert.Equal(t, "Shingeki no Kyojin", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(7), *parsed.Episode)
}

func TestParseSeasonEpisodeStyle(t *testing.T) {
	parsed := ParseAnimeFromSource("Oshi.no.Ko.S01E12.1080p.WEB-DL.mkv")
	require.NotNil(t, parsed)
	assert.Equal(t, "Oshi no Ko", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(12), *parsed.Episode)
}

func TestParseJapaneseEpisodeMarker(t *testing.T) {
	parsed := ParseAnimeFromSource("進撃の巨人 第03話.mp4")
	require.NotNil(t, parsed)
	assert.Equal(t, "進撃の巨人", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(3), *parsed.Episode)
}

func TestParseRejectsYearAsEpisode(t *testing.T) {
	parsed := ParseAnimeFromSource("movie_trailer_2021.mov")
	require.NotNil(t, parsed)
	assert.Equal(t, "movie trailer", parsed.AnimeTitle)
	assert.Nil(t, parsed.Episode)
}

func TestParseExplicitEpisodeMarkers(t *testing.T) {
	for _, tc := range []struct {
		source  string
		title   string
		episode uint32
	}{
		{"Frieren EP 07.mkv", "Frieren", 7},
		{"Frieren Episode-22.mkv", "Frieren", 22},
		{"Spy x Family e05.mp4", "Spy x Family", 5},
	} {
		parsed := ParseAnimeFromSource(tc.source)
		require.NotNil(t, parsed, tc.source)
		assert.Equal(t, tc.title, parsed.AnimeTitle, tc.source)
		require.NotNil(t, parsed.Episode, tc.source)
		assert.Equal(t, tc.episode, *parsed.Episode, tc.source)
	}
}

func TestParseBracketedEpisodeWithVersion(t *testing.T) {
	parsed := ParseAnimeFromSource("Bocchi the Rock [08v2].mkv")
	require.NotNil(t, parsed)
	assert.Equal(t, "Bocchi the Rock", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(8), *parsed.Episode)
}

func TestParseRejectsResolutionTokens(t *testing.T) {
	parsed := ParseAnimeFromSource("Vinland Saga 1080p.mkv")
	require.NotNil(t, parsed)
	assert.Equal(t, "Vinland Saga", parsed.AnimeTitle)
	assert.Nil(t, parsed.Episode)
}

func TestParseFullPathAndURL(t *testing.T) {
	parsed := ParseAnimeFromSource(`C:\Videos\Anime\Dandadan - 04.mkv`)
	require.NotNil(t, parsed)
	assert.Equal(t, "Dandadan", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(4), *parsed.Episode)

	parsed = ParseAnimeFromSource("https://cdn.example.com/stream/Dandadan%20-%2005.mkv?token=abc#t=120")
	require.NotNil(t, parsed)
	assert.Equal(t, "Dandadan", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(5), *parsed.Episode)
}

func TestParsePlusDecodesToSpace(t *testing.T) {
	parsed := ParseAnimeFromSource("Sousou+no+Frieren+-+11.mkv")
	require.NotNil(t, parsed)
	assert.Equal(t, "Sousou no Frieren", parsed.AnimeTitle)
	require.NotNil(t, parsed.Episode)
	assert.Equal(t, uint32(11), *parsed.Episode)
}

func TestParseReturnsNilWhenNothingSurvives(t *testing.T) {
	assert.Nil(t, ParseAnimeFromSource(""))
	assert.Nil(t, ParseAnimeFromSource(`"  "`))
	assert.Nil(t, ParseAnimeFromSource("[1080p].mkv"))
}

func TestIsPlausibleEpisode(t *testing.T) {
	assert.True(t, isPlausibleEpisode(1))
	assert.True(t, isPlausibleEpisode(5000))
	assert.True(t, isPlausibleEpisode(1899))
	assert.True(t, isPlausibleEpisode(2101))

	assert.False(t, isPlausibleEpisode(0))
	assert.False(t, isPlausibleEpisode(5001))
	for resolution := range resolutionNumbers {
		assert.False(t, isPlausibleEpisode(resolution), resolution)
	}
	for year := uint32(1900); year <= 2100; year += 25 {
		assert.False(t, isPlausibleEpisode(year), year)
	}
}

func TestNormalizeSourceArg(t *testing.T) {
	source, ok := normalizeSourceArg(`"/home/user/ep01.mkv"`)
	assert.True(t, ok)
	assert.Equal(t, "/home/user/ep01.mkv", source)

	source, ok = normalizeSourceArg("https://example.com/watch")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/watch", source)

	_, ok = normalizeSourceArg("/home/user/notes.txt")
	assert.False(t, ok)
	_, ok = normalizeSourceArg("")
	assert.False(t, ok)

	// Query and fragment do not hide the extension.
	_, ok = normalizeSourceArg("/srv/ep02.mkv?token=x#t=1")
	assert.True(t, ok)
}

func TestLooksLikeWindowsPath(t *testing.T) {
	assert.True(t, looksLikeWindowsPath(`C:\Videos\ep.mkv`))
	assert.True(t, looksLikeWindowsPath("d:/videos/ep.mkv"))
	assert.False(t, looksLikeWindowsPath("/dvd"))
	assert.False(t, looksLikeWindowsPath(`1:\oops`))
}
