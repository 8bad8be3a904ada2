package playback

// Player identifies a supported media player.
type Player string

const (
	PlayerMPV   Player = "mpv"
	PlayerMPCHC Player = "mpc-hc"
	PlayerMPCBE Player = "mpc-be"
)

// AllPlayers returns every supported player in canonical order.
func AllPlayers() []Player {
	return []Player{PlayerMPV, PlayerMPCHC, PlayerMPCBE}
}

// processAliases lists the executable basenames a player appears under,
// compared case-insensitively after normalizeProcessName.
func (p Player) processAliases() []string {
	switch p {
	case PlayerMPV:
		return []string{"mpv", "mpv.exe", "mpvnet", "mpvnet.exe", "io.mpv.mpv"}
	case PlayerMPCHC:
		return []string{"mpc-hc", "mpc-hc.exe", "mpc-hc64", "mpc-hc64.exe"}
	case PlayerMPCBE:
		return []string{"mpc-be", "mpc-be.exe", "mpc-be64", "mpc-be64.exe"}
	default:
		return nil
	}
}

// MatchesProcessName reports whether value, normalised to a lowercase
// basename, is one of the player's executable aliases.
func (p Player) MatchesProcessName(value string) bool {
	normalized := normalizeProcessName(value)
	for _, alias := range p.processAliases() {
		if normalized == alias {
			return true
		}
	}
	return false
}

// IsValid reports whether p names a supported player.
func (p Player) IsValid() bool {
	switch p {
	case PlayerMPV, PlayerMPCHC, PlayerMPCBE:
		return true
	}
	return false
}

// ProcessSnapshot is one row of the OS process table.
type ProcessSnapshot struct {
	PID         uint32
	Name        string
	CommandLine string
	Args        []string
}

// AnimePlaybackDetection is a parsed "currently playing" observation.
type AnimePlaybackDetection struct {
	Player     Player  `json:"player"`
	ProcessID  uint32  `json:"processId"`
	Source     string  `json:"source"`
	AnimeTitle string  `json:"animeTitle"`
	Episode    *uint32 `json:"episode,omitempty"`
}

// DetectPlayingAnimeRequest narrows a one-shot detection to a player subset.
// An empty or missing set means all supported players.
type DetectPlayingAnimeRequest struct {
	Players []Player `json:"players,omitempty" validate:"omitempty,dive,oneof=mpv mpc-hc mpc-be"`
}

// ObserverSnapshot is a read-only copy of the observer state.
type ObserverSnapshot struct {
	Active            *AnimePlaybackDetection `json:"active,omitempty"`
	LastObserved      *AnimePlaybackDetection `json:"lastObserved,omitempty"`
	ObservedProcessID *uint32                 `json:"observedProcessId,omitempty"`
	ObservedPlayer    *Player                 `json:"observedPlayer,omitempty"`
	SelectedPlayers   []Player                `json:"selectedPlayers"`
	Enabled           bool                    `json:"enabled"`
	PollIntervalMs    uint64                  `json:"pollIntervalMs"`
	LastError         *string                 `json:"lastError,omitempty"`
}

// ConfigureObserverRequest mutates the observer. Nil fields are untouched.
type ConfigureObserverRequest struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	Players        []Player `json:"players,omitempty" validate:"omitempty,dive,oneof=mpv mpc-hc mpc-be"`
	PollIntervalMs *uint64  `json:"pollIntervalMs,omitempty"`
}
