package playback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withProcessTable swaps in a synthetic process table for the duration of a
// test.
func withProcessTable(t *testing.T, processes []ProcessSnapshot, err error) {
	t.Helper()
	previous := enumerateProcesses
	enumerateProcesses = func() ([]ProcessSnapshot, error) {
		return processes, err
	}
	t.Cleanup(func() { enumerateProcesses = previous })
}

func mpvProcess(pid uint32, source string) ProcessSnapshot {
	commandLine := "mpv " + source
	return ProcessSnapshot{
		PID:         pid,
		Name:        "mpv",
		CommandLine: commandLine,
		Args:        []string{"mpv", source},
	}
}

func TestCollectCycleMatchesAndParses(t *testing.T) {
	withProcessTable(t, []ProcessSnapshot{
		mpvProcess(42, "/videos/Dandadan - 04.mkv"),
		{PID: 50, Name: "bash", CommandLine: "bash", Args: []string{"bash"}},
	}, nil)

	cycle, err := collectDetectionCycleResult(AllPlayers())
	require.NoError(t, err)

	assert.Contains(t, cycle.MatchedPlayerPIDs, uint32(42))
	assert.NotContains(t, cycle.MatchedPlayerPIDs, uint32(50))
	require.Len(t, cycle.Detections, 1)
	assert.Equal(t, PlayerMPV, cycle.Detections[0].Player)
	assert.Equal(t, uint32(42), cycle.Detections[0].ProcessID)
	assert.Equal(t, "/videos/Dandadan - 04.mkv", cycle.Detections[0].Source)
	assert.Equal(t, "Dandadan", cycle.Detections[0].AnimeTitle)
}

func TestCollectCycleRecordsMatchedPIDWithoutSource(t *testing.T) {
	// A player without a playable argument counts as matched but yields no
	// candidate.
	withProcessTable(t, []ProcessSnapshot{
		{PID: 7, Name: "mpv", CommandLine: "mpv --idle", Args: []string{"mpv", "--idle"}},
	}, nil)

	cycle, err := collectDetectionCycleResult(AllPlayers())
	require.NoError(t, err)
	assert.Contains(t, cycle.MatchedPlayerPIDs, uint32(7))
	assert.Empty(t, cycle.Detections)
}

func TestCollectCycleSortsByPID(t *testing.T) {
	withProcessTable(t, []ProcessSnapshot{
		mpvProcess(90, "/videos/Frieren - 02.mkv"),
		mpvProcess(10, "/videos/Frieren - 01.mkv"),
	}, nil)

	cycle, err := collectDetectionCycleResult(AllPlayers())
	require.NoError(t, err)
	require.Len(t, cycle.Detections, 2)
	assert.Equal(t, uint32(10), cycle.Detections[0].ProcessID)
	assert.Equal(t, uint32(90), cycle.Detections[1].ProcessID)
}

func TestCollectCycleHonoursPlayerSelection(t *testing.T) {
	withProcessTable(t, []ProcessSnapshot{
		mpvProcess(42, "/videos/Dandadan - 04.mkv"),
	}, nil)

	cycle, err := collectDetectionCycleResult([]Player{PlayerMPCHC})
	require.NoError(t, err)
	assert.Empty(t, cycle.MatchedPlayerPIDs)
	assert.Empty(t, cycle.Detections)
}

func TestCollectCycleSurfacesEnumerationError(t *testing.T) {
	withProcessTable(t, nil, errors.New("failed to list running processes: boom"))

	_, err := collectDetectionCycleResult(AllPlayers())
	assert.ErrorContains(t, err, "boom")
}

func TestDetectPicksBestScore(t *testing.T) {
	// PID 10 has title+episode (score 5), PID 20 only a short title.
	withProcessTable(t, []ProcessSnapshot{
		mpvProcess(10, "/videos/Shingeki no Kyojin - 07.mkv"),
		mpvProcess(20, "/videos/abc.mkv"),
	}, nil)

	detection, err := DetectPlayingAnime(nil)
	require.NoError(t, err)
	require.NotNil(t, detection)
	assert.Equal(t, uint32(10), detection.ProcessID)
}

func TestDetectBreaksTiesTowardLargerPID(t *testing.T) {
	withProcessTable(t, []ProcessSnapshot{
		mpvProcess(10, "/videos/Frieren - 01.mkv"),
		mpvProcess(20, "/videos/Dandadan - 02.mkv"),
	}, nil)

	detection, err := DetectPlayingAnime(nil)
	require.NoError(t, err)
	require.NotNil(t, detection)
	assert.Equal(t, uint32(20), detection.ProcessID)
}

func TestDetectReturnsNilWithoutCandidates(t *testing.T) {
	withProcessTable(t, nil, nil)

	detection, err := DetectPlayingAnime(nil)
	require.NoError(t, err)
	assert.Nil(t, detection)
}

func TestExtractMediaSourcePicksLastPlayableToken(t *testing.T) {
	source, ok := extractMediaSource(PlayerMPV,
		[]string{"mpv", "--fs", "/videos/first.mkv", "/videos/second.mkv"}, "")
	require.True(t, ok)
	assert.Equal(t, "/videos/second.mkv", source)
}

func TestExtractMediaSourceFallsBackToCommandLine(t *testing.T) {
	source, ok := extractMediaSource(PlayerMPV, nil, `mpv "/videos/My Show - 03.mkv"`)
	require.True(t, ok)
	assert.Equal(t, "/videos/My Show - 03.mkv", source)
}

func TestExtractMediaSourceMPCSlashOptions(t *testing.T) {
	// Slash tokens are MPC options unless they are drive paths or URLs.
	_, ok := extractMediaSource(PlayerMPCHC, []string{"mpc-hc64.exe", "/play", "/fullscreen"}, "")
	assert.False(t, ok)

	source, ok := extractMediaSource(PlayerMPCHC,
		[]string{"mpc-hc64.exe", "/play", `D:\anime\ep05.mkv`}, "")
	require.True(t, ok)
	assert.Equal(t, `D:\anime\ep05.mkv`, source)

	// mpv on Unix: absolute paths start with a slash and are not options.
	source, ok = extractMediaSource(PlayerMPV, []string{"mpv", "/videos/ep06.mkv"}, "")
	require.True(t, ok)
	assert.Equal(t, "/videos/ep06.mkv", source)
}
