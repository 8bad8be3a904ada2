package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/kioku-app/kioku/internal/pkg/auth"
	"github.com/kioku-app/kioku/internal/pkg/env"
)

const (
	defaultGraphQLURL = "https://graphql.anilist.co"
	mediaTypeAnime    = "ANIME"
	requestTimeout    = 15 * time.Second
)

const mediaListCollectionQuery = `
query ($type: MediaType!, $userName: String) {
  MediaListCollection(type: $type, userName: $userName) {
    lists {
      name
      entries {
        id
        media {
          id
          title { romaji native english }
          coverImage { large extraLarge }
          meanScore
          mediaListEntry {
            completedAt { day month year }
            notes
            progress
            repeat
            startedAt { day month year }
            status
            score
            id
          }
          startDate { year month day }
          source
          seasonYear
          season
          episodes
          description
          nextAiringEpisode { episode }
          status
          studios { nodes { name } }
          type
          genres
          format
        }
      }
      status
    }
    hasNextChunk
  }
}
`

// Service talks to the AniList GraphQL API with tokens from the auth manager.
type Service struct {
	manager    *auth.Manager
	httpClient *http.Client
	graphqlURL string
	username   string
}

func NewService(manager *auth.Manager) *Service {
	return &Service{
		manager:    manager,
		httpClient: &http.Client{Timeout: requestTimeout},
		graphqlURL: defaultGraphQLURL,
		username:   strings.TrimSpace(env.GetEnv("KIOKU_ANILIST_USERNAME", "")),
	}
}

type graphqlError struct {
	Message string `json:"message"`
}

type fuzzyDate struct {
	Day   *uint32 `json:"day"`
	Month *uint32 `json:"month"`
	Year  *int    `json:"year"`
}

type fuzzyDateInput struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type mediaTitle struct {
	Romaji  string `json:"romaji"`
	Native  string `json:"native"`
	English string `json:"english"`
}

type mediaCoverImage struct {
	Large      string `json:"large"`
	ExtraLarge string `json:"extraLarge"`
}

type mediaListEntry struct {
	ID          int64      `json:"id"`
	CompletedAt *fuzzyDate `json:"completedAt"`
	Notes       string     `json:"notes"`
	Progress    *uint32    `json:"progress"`
	Repeat      *uint32    `json:"repeat"`
	StartedAt   *fuzzyDate `json:"startedAt"`
	Status      string     `json:"status"`
	Score       *float64   `json:"score"`
}

type mediaStudios struct {
	Nodes []struct {
		Name string `json:"name"`
	} `json:"nodes"`
}

type listMedia struct {
	ID                int64            `json:"id"`
	Title             *mediaTitle      `json:"title"`
	CoverImage        *mediaCoverImage `json:"coverImage"`
	MeanScore         *uint32          `json:"meanScore"`
	MediaListEntry    *mediaListEntry  `json:"mediaListEntry"`
	StartDate         *fuzzyDate       `json:"startDate"`
	Source            string           `json:"source"`
	SeasonYear        *uint32          `json:"seasonYear"`
	Season            string           `json:"season"`
	Episodes          *uint32          `json:"episodes"`
	Description       string           `json:"description"`
	NextAiringEpisode *struct {
		Episode uint32 `json:"episode"`
	} `json:"nextAiringEpisode"`
	Status  string        `json:"status"`
	Studios *mediaStudios `json:"studios"`
	Type    string        `json:"type"`
	Genres  []string      `json:"genres"`
	Format  string        `json:"format"`
}

type collectionList struct {
	Status  string `json:"status"`
	Entries []struct {
		Media *listMedia `json:"media"`
	} `json:"entries"`
}

type mediaListCollection struct {
	Lists        []collectionList `json:"lists"`
	HasNextChunk bool             `json:"hasNextChunk"`
}

// Synchronize pulls the user's anime list and maps it to the UI shape.
func (s *Service) Synchronize(ctx context.Context) (*SynchronizedAnimeList, error) {
	token, err := s.manager.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return nil, err
	}

	collection, err := s.fetchCollection(ctx, token)
	if err != nil {
		return nil, err
	}

	if collection.HasNextChunk {
		log.Warn("[AniList] Additional chunks available; only the first chunk is synchronized")
	}

	result := &SynchronizedAnimeList{}
	for _, list := range collection.Lists {
		for _, entry := range list.Entries {
			media := entry.Media
			if media == nil {
				continue
			}

			status := list.Status
			if media.MediaListEntry != nil && media.MediaListEntry.Status != "" {
				status = media.MediaListEntry.Status
			}
			statusKey := userStatusFromAniList(status)

			if media.MediaListEntry == nil {
				log.Warnf("[AniList] Entry missing mediaListEntry for media %d", media.ID)
				continue
			}

			item := mapMediaToDomain(media, media.MediaListEntry, statusKey)
			statusKey.push(result, item)
		}
	}

	return result, nil
}

func (s *Service) fetchCollection(ctx context.Context, token string) (*mediaListCollection, error) {
	variables := map[string]any{"type": mediaTypeAnime}
	if s.username != "" {
		variables["userName"] = s.username
	}

	body, err := s.post(ctx, token, map[string]any{
		"query":     mediaListCollectionQuery,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data *struct {
			MediaListCollection *mediaListCollection `json:"MediaListCollection"`
		} `json:"data"`
		Errors []graphqlError `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse AniList response: %w", err)
	}
	if err := joinGraphQLErrors(parsed.Errors); err != nil {
		return nil, err
	}
	if parsed.Data == nil || parsed.Data.MediaListCollection == nil {
		return nil, errors.New("AniList response missing MediaListCollection")
	}

	return parsed.Data.MediaListCollection, nil
}

// post sends one GraphQL request and returns the raw response body.
func (s *Service) post(ctx context.Context, token string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.graphqlURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("AniList request failed: %d - %s", response.StatusCode, string(body))
	}

	return body, nil
}

func joinGraphQLErrors(errs []graphqlError) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Message)
	}
	return fmt.Errorf("AniList GraphQL error: %s", strings.Join(messages, "; "))
}
