package myanimelist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kioku-app/kioku/internal/pkg/updatequeue"
)

// ErrNoUpdateFields is returned when an update request carries no changes.
var ErrNoUpdateFields = errors.New("no update fields provided")

// UpdateListEntry writes one list-entry change as a form-encoded PUT to
// /anime/{id}/my_list_status.
func (s *Service) UpdateListEntry(ctx context.Context, update updatequeue.AnimeListUpdateRequest) error {
	if !update.HasChanges() {
		return ErrNoUpdateFields
	}

	form := url.Values{}
	if update.UserStatus != nil {
		status, err := mapUserStatus(*update.UserStatus)
		if err != nil {
			return err
		}
		form.Set("status", status)
	}
	if update.UserScore != nil {
		form.Set("score", strconv.Itoa(*update.UserScore))
	}
	if update.UserEpisodesWatched != nil {
		form.Set("num_watched_episodes", strconv.Itoa(*update.UserEpisodesWatched))
	}
	if update.IsRewatching != nil {
		form.Set("is_rewatching", strconv.FormatBool(*update.IsRewatching))
	}
	if update.UserComments != nil {
		form.Set("comments", *update.UserComments)
	}
	if update.UserNumTimesRewatched != nil {
		form.Set("num_times_rewatched", strconv.Itoa(*update.UserNumTimesRewatched))
	}
	if update.UserStartDate != nil {
		form.Set("start_date", *update.UserStartDate)
	}
	if update.UserFinishDate != nil {
		form.Set("finish_date", *update.UserFinishDate)
	}

	token, err := s.manager.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/anime/%d/my_list_status", s.apiBase, update.EntryID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(response.Body)
		return fmt.Errorf("MyAnimeList update failed: %d - %s", response.StatusCode, string(body))
	}

	return nil
}

// mapUserStatus converts the UI's status vocabulary to MAL's snake_case one.
func mapUserStatus(status string) (string, error) {
	switch status {
	case "watching", "completed", "dropped":
		return status, nil
	case "onHold", "on_hold":
		return "on_hold", nil
	case "planToWatch", "plan_to_watch":
		return "plan_to_watch", nil
	default:
		return "", fmt.Errorf("invalid MyAnimeList status: %s", status)
	}
}
