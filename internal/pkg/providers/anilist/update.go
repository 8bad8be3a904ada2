package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kioku-app/kioku/internal/pkg/updatequeue"
)

// ErrNoUpdateFields is returned when an update request carries no changes.
var ErrNoUpdateFields = errors.New("no update fields provided")

const saveMediaListEntryMutation = `
mutation Mutation(
  $saveMediaListEntryId: Int
  $mediaId: Int
  $status: MediaListStatus
  $score: Float
  $progress: Int
  $repeat: Int
  $notes: String
  $startedAt: FuzzyDateInput
  $completedAt: FuzzyDateInput
) {
  SaveMediaListEntry(
    id: $saveMediaListEntryId
    mediaId: $mediaId
    status: $status
    score: $score
    progress: $progress
    repeat: $repeat
    notes: $notes
    startedAt: $startedAt
    completedAt: $completedAt
  ) {
    id
  }
}
`

// UpdateListEntry writes one list-entry change through the SaveMediaListEntry
// mutation. EntryID targets an existing list entry; MediaID targets the title
// itself and wins when both are present.
func (s *Service) UpdateListEntry(ctx context.Context, update updatequeue.AnimeListUpdateRequest) error {
	variables := map[string]any{}

	if update.UserStatus != nil {
		status, err := mapUserStatusToAniList(*update.UserStatus)
		if err != nil {
			return err
		}
		variables["status"] = status
	}
	if update.UserScore != nil {
		variables["score"] = float64(*update.UserScore)
	}
	if update.UserEpisodesWatched != nil {
		variables["progress"] = *update.UserEpisodesWatched
	}

	// repeat derives from the explicit rewatch count when present, else from
	// the rewatching flag.
	switch {
	case update.UserNumTimesRewatched != nil:
		variables["repeat"] = *update.UserNumTimesRewatched
	case update.IsRewatching != nil && *update.IsRewatching:
		variables["repeat"] = 1
	case update.IsRewatching != nil:
		variables["repeat"] = 0
	}

	if update.UserComments != nil {
		if notes := strings.TrimSpace(*update.UserComments); notes != "" {
			variables["notes"] = notes
		}
	}

	startedAt, err := parseFuzzyDateInput(update.UserStartDate, "userStartDate")
	if err != nil {
		return err
	}
	if startedAt != nil {
		variables["startedAt"] = startedAt
	}
	completedAt, err := parseFuzzyDateInput(update.UserFinishDate, "userFinishDate")
	if err != nil {
		return err
	}
	if completedAt != nil {
		variables["completedAt"] = completedAt
	}

	if len(variables) == 0 {
		return ErrNoUpdateFields
	}

	if update.MediaID != nil {
		variables["mediaId"] = *update.MediaID
	} else if update.EntryID > 0 {
		variables["saveMediaListEntryId"] = update.EntryID
	} else {
		return errors.New("missing AniList target id: provide entry_id or media_id")
	}

	token, err := s.manager.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return err
	}

	body, err := s.post(ctx, token, map[string]any{
		"query":     saveMediaListEntryMutation,
		"variables": variables,
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Data *struct {
			SaveMediaListEntry *struct {
				ID int64 `json:"id"`
			} `json:"SaveMediaListEntry"`
		} `json:"data"`
		Errors []graphqlError `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to parse AniList update response: %w", err)
	}
	if err := joinGraphQLErrors(parsed.Errors); err != nil {
		return err
	}
	if parsed.Data == nil || parsed.Data.SaveMediaListEntry == nil {
		return errors.New("AniList update response missing SaveMediaListEntry")
	}
	if parsed.Data.SaveMediaListEntry.ID == 0 {
		return errors.New("AniList update returned an invalid entry id")
	}

	return nil
}
