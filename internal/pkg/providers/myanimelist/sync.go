package myanimelist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/kioku-app/kioku/internal/pkg/auth"
)

const (
	defaultAPIBase = "https://api.myanimelist.net/v2"

	listFields = "list_status,synopsis,alternative_titles,source,num_episodes,nsfw,start_season,media_type,studios,mean"
	pageLimit  = 100

	requestTimeout = 15 * time.Second
)

// listStatuses are the five MAL list shelves, each fetched independently.
var listStatuses = []string{"watching", "completed", "on_hold", "dropped", "plan_to_watch"}

// Service talks to the MyAnimeList v2 API with tokens from the auth manager.
type Service struct {
	manager    *auth.Manager
	httpClient *http.Client
	apiBase    string
}

func NewService(manager *auth.Manager) *Service {
	return &Service{
		manager:    manager,
		httpClient: &http.Client{Timeout: requestTimeout},
		apiBase:    defaultAPIBase,
	}
}

type listPage struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Synchronize pulls the full anime list, one goroutine per status shelf, and
// returns the raw MAL entries keyed by status.
func (s *Service) Synchronize(ctx context.Context) (map[string][]json.RawMessage, error) {
	token, err := s.manager.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]json.RawMessage, len(listStatuses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, status := range listStatuses {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()

			items, err := s.fetchStatus(ctx, token, status)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			result[status] = items
		}(status)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// fetchStatus walks one shelf's offset pagination until paging.next runs out.
func (s *Service) fetchStatus(ctx context.Context, token, status string) ([]json.RawMessage, error) {
	var results []json.RawMessage
	offset := 0

	for {
		page, err := s.fetchPage(ctx, token, status, offset)
		if err != nil {
			return nil, err
		}
		results = append(results, page.Data...)

		if page.Paging.Next == "" {
			return results, nil
		}
		offset = parseNextOffset(page.Paging.Next, offset+pageLimit)
	}
}

func (s *Service) fetchPage(ctx context.Context, token, status string, offset int) (*listPage, error) {
	query := url.Values{}
	query.Set("fields", listFields)
	query.Set("status", status)
	query.Set("limit", strconv.Itoa(pageLimit))
	query.Set("offset", strconv.Itoa(offset))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.apiBase+"/users/@me/animelist?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+token)

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
		return nil, fmt.Errorf("MyAnimeList request failed (%s): %d - %s", status, response.StatusCode, string(body))
	}

	var page listPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse MyAnimeList response: %w", err)
	}
	return &page, nil
}

// parseNextOffset reads the offset from MAL's paging.next URL, falling back
// to a fixed stride when the URL is malformed.
func parseNextOffset(nextURL string, fallback int) int {
	parsed, err := url.Parse(nextURL)
	if err != nil {
		return fallback
	}
	offset, err := strconv.Atoi(parsed.Query().Get("offset"))
	if err != nil {
		return fallback
	}
	return offset
}
