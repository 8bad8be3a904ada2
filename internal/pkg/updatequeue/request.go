package updatequeue

// AnimeListUpdateRequest carries a user-initiated change to one list entry.
// All mutation fields are optional; a provider routine sends only the fields
// that are set.
type AnimeListUpdateRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
	EntryID    int64  `json:"entry_id" validate:"required,gt=0"`
	// MediaID addresses a title that is not on the user's list yet; providers
	// that support it prefer EntryID when both are present.
	MediaID *int64 `json:"media_id,omitempty" validate:"omitempty,gt=0"`

	UserStatus            *string `json:"user_status,omitempty"`
	UserScore             *int    `json:"user_score,omitempty" validate:"omitempty,gte=0,lte=10"`
	UserEpisodesWatched   *int    `json:"user_episodes_watched,omitempty" validate:"omitempty,gte=0"`
	IsRewatching          *bool   `json:"is_rewatching,omitempty"`
	UserComments          *string `json:"user_comments,omitempty"`
	UserNumTimesRewatched *int    `json:"user_num_times_rewatched,omitempty" validate:"omitempty,gte=0"`
	UserStartDate         *string `json:"user_start_date,omitempty"`
	UserFinishDate        *string `json:"user_finish_date,omitempty"`
}

// HasChanges reports whether any mutation field is set. Routines reject empty
// updates before touching the network.
func (r AnimeListUpdateRequest) HasChanges() bool {
	return r.UserStatus != nil ||
		r.UserScore != nil ||
		r.UserEpisodesWatched != nil ||
		r.IsRewatching != nil ||
		r.UserComments != nil ||
		r.UserNumTimesRewatched != nil ||
		r.UserStartDate != nil ||
		r.UserFinishDate != nil
}
