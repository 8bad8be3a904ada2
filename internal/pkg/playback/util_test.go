package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupPlayersPreservesOrder(t *testing.T) {
	players := dedupPlayers([]Player{PlayerMPCHC, PlayerMPV, PlayerMPCHC, PlayerMPV, PlayerMPCBE})
	assert.Equal(t, []Player{PlayerMPCHC, PlayerMPV, PlayerMPCBE}, players)
}

func TestClampPollInterval(t *testing.T) {
	assert.Equal(t, MinPollIntervalMs, clampPollIntervalMs(0))
	assert.Equal(t, MinPollIntervalMs, clampPollIntervalMs(499))
	assert.Equal(t, uint64(2000), clampPollIntervalMs(2000))
	assert.Equal(t, MaxPollIntervalMs, clampPollIntervalMs(60001))
}

func TestNormalizeProcessName(t *testing.T) {
	assert.Equal(t, "mpv.exe", normalizeProcessName(`"C:\Program Files\mpv\mpv.exe"`))
	assert.Equal(t, "mpv", normalizeProcessName("/usr/bin/mpv"))
	assert.Equal(t, "mpc-hc64.exe", normalizeProcessName("MPC-HC64.EXE"))
	assert.Equal(t, "io.mpv.mpv", normalizeProcessName("io.mpv.mpv"))
}

func TestMatchesProcessName(t *testing.T) {
	assert.True(t, PlayerMPV.MatchesProcessName("mpvnet.exe"))
	assert.True(t, PlayerMPCBE.MatchesProcessName(`C:\MPC\mpc-be64.exe`))
	assert.False(t, PlayerMPV.MatchesProcessName("mpvd"))
	assert.False(t, PlayerMPCHC.MatchesProcessName("mpc-be.exe"))
}

func TestSplitCommandLine(t *testing.T) {
	assert.Equal(t,
		[]string{"mpv", "--fs", "/videos/my show 01.mkv"},
		splitCommandLine(`mpv --fs "/videos/my show 01.mkv"`))
	assert.Equal(t,
		[]string{"mpc-hc64.exe", "/play", "D:\\anime\\ep.mkv"},
		splitCommandLine(`mpc-hc64.exe /play 'D:\anime\ep.mkv'`))
	assert.Empty(t, splitCommandLine("   "))
}
