package apiv1

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/kioku-app/kioku/internal/pkg/auth"
	"github.com/kioku-app/kioku/internal/pkg/events"
	"github.com/kioku-app/kioku/internal/pkg/listcache"
	"github.com/kioku-app/kioku/internal/pkg/playback"
	"github.com/kioku-app/kioku/internal/pkg/updatequeue"
)

// Synchronizer fetches a provider's full anime list in its domain shape.
type Synchronizer func(ctx context.Context) (any, error)

// APIServer exposes the native backend to the UI over the loopback server.
type APIServer struct {
	manager      *auth.Manager
	flow         *auth.Flow
	bus          *events.Bus
	queue        *updatequeue.Queue
	observer     *playback.Observer
	cache        *listcache.Cache
	synchronizer map[string]Synchronizer
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(manager *auth.Manager, flow *auth.Flow, bus *events.Bus, queue *updatequeue.Queue, observer *playback.Observer, cache *listcache.Cache) *APIServer {
	return &APIServer{
		manager:      manager,
		flow:         flow,
		bus:          bus,
		queue:        queue,
		observer:     observer,
		cache:        cache,
		synchronizer: make(map[string]Synchronizer),
	}
}

// RegisterSynchronizer wires a provider's list synchronization into the API.
func (s *APIServer) RegisterSynchronizer(providerID string, sync Synchronizer) {
	s.synchronizer[providerID] = sync
}

// RegisterHandlers attaches all v1 routes to the given router group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	router.Post("/auth/:provider/authorize", s.PostAuthorize)
	router.Post("/callback", s.PostCallback)
	router.Post("/oauth/request", s.PostOAuthRequest)

	router.Get("/providers", s.GetCachedProviders)
	router.Post("/providers/:provider/synchronize", s.PostSynchronize)
	router.Get("/providers/:provider/list", s.GetCachedList)

	router.Post("/updates", s.PostUpdate)

	router.Post("/playback/detect", s.PostDetect)
	router.Get("/playback/observer", s.GetObserver)
	router.Put("/playback/observer", s.PutObserver)

	router.Get("/events", s.GetEvents)
}

// GetPing handles the ping endpoint.
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// PostAuthorize starts the OAuth authorization phase for a provider by
// opening the system browser. The result arrives later via the deep-link
// callback and is announced on the event stream.
func (s *APIServer) PostAuthorize(c *fiber.Ctx) error {
	providerID := c.Params("provider")
	if err := s.flow.Authorize(providerID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "authorize_failed",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "browser_opened"})
}

type callbackRequest struct {
	URL      string `json:"url" validate:"required"`
	Provider string `json:"provider,omitempty"`
}

// PostCallback ingests a kioku:// deep-link URL, either from the OS handler
// of this instance or forwarded from a second process instance.
func (s *APIServer) PostCallback(c *fiber.Ctx) error {
	var request callbackRequest
	if err := parseBody(c, &request); err != nil {
		return badRequest(c, err)
	}

	if err := s.flow.HandleCallback(c.Context(), request.URL, request.Provider); err != nil {
		log.Errorf("[API] Callback handling failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "callback_failed",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// PostOAuthRequest proxies one authenticated HTTP request for the UI.
func (s *APIServer) PostOAuthRequest(c *fiber.Ctx) error {
	var request auth.OAuthRequest
	if err := parseBody(c, &request); err != nil {
		return badRequest(c, err)
	}

	response, err := s.manager.ProxyRequest(c.Context(), request)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "oauth_request_failed",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

// PostSynchronize pulls the provider's full list, caches it, and returns it.
func (s *APIServer) PostSynchronize(c *fiber.Ctx) error {
	providerID := c.Params("provider")
	sync, ok := s.synchronizer[providerID]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "unknown_provider",
			"message": fmt.Sprintf("no synchronizer registered for %s", providerID),
		})
	}

	list, err := sync(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "synchronize_failed",
			"message": err.Error(),
		})
	}

	if s.cache != nil {
		if err := s.cache.Save(providerID, list); err != nil {
			log.Errorf("[API] Failed to cache %s list: %v", providerID, err)
		}
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

// GetCachedProviders lists the providers with a cached list, newest first.
func (s *APIServer) GetCachedProviders(c *fiber.Ctx) error {
	if s.cache == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "cache_unavailable",
			"message": "list cache is not configured",
		})
	}

	providers, err := s.cache.Providers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "cache_read_failed",
			"message": err.Error(),
		})
	}
	if providers == nil {
		providers = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"providers": providers})
}

// GetCachedList returns the last synchronized list for a provider.
func (s *APIServer) GetCachedList(c *fiber.Ctx) error {
	providerID := c.Params("provider")
	if s.cache == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "cache_unavailable",
			"message": "list cache is not configured",
		})
	}

	entry, err := s.cache.Get(providerID)
	if errors.Is(err, listcache.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_synchronized",
			"message": fmt.Sprintf("no cached list for %s", providerID),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "cache_read_failed",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(entry)
}

// PostUpdate enqueues one list-entry update for rate-limited delivery.
func (s *APIServer) PostUpdate(c *fiber.Ctx) error {
	var request updatequeue.AnimeListUpdateRequest
	if err := parseBody(c, &request); err != nil {
		return badRequest(c, err)
	}

	if err := s.queue.Enqueue(request); err != nil {
		if errors.Is(err, updatequeue.ErrUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "queue_unavailable",
				"message": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "enqueue_failed",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}

// PostDetect runs one detection cycle and returns the best candidate, or an
// empty body when nothing is playing.
func (s *APIServer) PostDetect(c *fiber.Ctx) error {
	var request playback.DetectPlayingAnimeRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &request); err != nil {
			return badRequest(c, err)
		}
	}

	detection, err := playback.DetectPlayingAnime(&request)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "detect_failed",
			"message": err.Error(),
		})
	}
	if detection == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"detection": nil})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"detection": detection})
}

// GetObserver returns the observer's current state.
func (s *APIServer) GetObserver(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(s.observer.Snapshot())
}

// PutObserver reconfigures the observer and returns the resulting state.
func (s *APIServer) PutObserver(c *fiber.Ctx) error {
	var request playback.ConfigureObserverRequest
	if err := parseBody(c, &request); err != nil {
		return badRequest(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(s.observer.Configure(request))
}

// GetEvents streams backend events to the UI as server-sent events.
func (s *APIServer) GetEvents(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	id, ch := s.bus.Subscribe()
	bus := s.bus

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer bus.Unsubscribe(id)

		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		keepAlive := time.NewTicker(30 * time.Second)
		defer keepAlive.Stop()

		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	v := validator.New()
	if err := v.Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return err
		}
		var fields []string
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fieldError := range validationErrors {
				fields = append(fields, fieldError.Field())
			}
		}
		return fmt.Errorf("validation failed for: %s", strings.Join(fields, ", "))
	}
	return nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": err.Error(),
	})
}
