package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	apiv1 "github.com/kioku-app/kioku/internal/api/v1"
	"github.com/kioku-app/kioku/internal/pkg/auth"
	"github.com/kioku-app/kioku/internal/pkg/env"
	"github.com/kioku-app/kioku/internal/pkg/events"
	"github.com/kioku-app/kioku/internal/pkg/listcache"
	"github.com/kioku-app/kioku/internal/pkg/playback"
	"github.com/kioku-app/kioku/internal/pkg/providers/anilist"
	"github.com/kioku-app/kioku/internal/pkg/providers/myanimelist"
	"github.com/kioku-app/kioku/internal/pkg/router"
	"github.com/kioku-app/kioku/internal/pkg/secrets"
	"github.com/kioku-app/kioku/internal/pkg/updatequeue"
)

const deepLinkScheme = "kioku://"

func main() {
	env.SetupEnvFile()

	address := fmt.Sprintf("%s:%s", env.GetEnv("KIOKU_HOST", "127.0.0.1"), env.GetEnv("KIOKU_PORT", "46321"))

	// A second instance launched by the OS deep-link handler forwards its URL
	// to the running instance and exits.
	pendingCallback := ""
	if url := deepLinkArg(os.Args); url != "" {
		if forwardCallback(address, url) {
			return
		}
		pendingCallback = url
	}

	backend, err := newBackend()
	if err != nil {
		log.Fatalf("[Kioku] Startup failed: %v", err)
	}

	app := newApplication(backend)

	if pendingCallback != "" {
		go func() {
			if err := backend.flow.HandleCallback(context.Background(), pendingCallback, ""); err != nil {
				log.Errorf("[Kioku] Startup callback failed: %v", err)
			}
		}()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		log.Info("[Kioku] Shutting down")
		backend.queue.Stop()
		backend.observer.Stop()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(address); err != nil {
		log.Fatalf("[Kioku] Server stopped: %v", err)
	}
}

type backend struct {
	manager  *auth.Manager
	flow     *auth.Flow
	bus      *events.Bus
	queue    *updatequeue.Queue
	observer *playback.Observer
	cache    *listcache.Cache
	server   *apiv1.APIServer
}

func newBackend() (*backend, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}

	store := secrets.NewStore("app.kioku.desktop", dataDir)
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("init secret store: %w", err)
	}

	manager := auth.NewManager(store)
	manager.RegisterProvider(myanimelist.ProviderID, myanimelist.Provider())
	manager.RegisterProvider(anilist.ProviderID, anilist.Provider())

	bus := events.NewBus()
	flow := auth.NewFlow(manager, bus)

	malService := myanimelist.NewService(manager)
	anilistService := anilist.NewService(manager)

	queue := updatequeue.NewQueue()
	queue.RegisterRoutine(myanimelist.ProviderID, malService.UpdateListEntry)
	queue.RegisterRoutine(anilist.ProviderID, anilistService.UpdateListEntry)
	queue.Start()

	observer := playback.NewObserver()

	cache, err := listcache.Open(filepath.Join(dataDir, "lists.db"))
	if err != nil {
		return nil, err
	}

	server := apiv1.NewAPIServer(manager, flow, bus, queue, observer, cache)
	server.RegisterSynchronizer(myanimelist.ProviderID, func(ctx context.Context) (any, error) {
		return malService.Synchronize(ctx)
	})
	server.RegisterSynchronizer(anilist.ProviderID, func(ctx context.Context) (any, error) {
		return anilistService.Synchronize(ctx)
	})

	return &backend{
		manager:  manager,
		flow:     flow,
		bus:      bus,
		queue:    queue,
		observer: observer,
		cache:    cache,
		server:   server,
	}, nil
}

func newApplication(b *backend) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "kioku",
		DisableStartupMessage: !env.IsDev(),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, b.server)

	return app
}

func resolveDataDir() (string, error) {
	dataDir := env.GetEnv("KIOKU_DATA_DIR", "")
	if dataDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		dataDir = filepath.Join(configDir, "kioku")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dataDir, nil
}

func deepLinkArg(args []string) string {
	for _, arg := range args[1:] {
		if strings.HasPrefix(arg, deepLinkScheme) {
			return arg
		}
	}
	return ""
}

// forwardCallback hands a deep-link URL to an already running instance via
// its loopback API. Returns false when no instance answers.
func forwardCallback(address, url string) bool {
	payload, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return false
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Post(
		fmt.Sprintf("http://%s/api/v1/callback", address),
		"application/json",
		bytes.NewReader(payload),
	)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info("[Kioku] Forwarded callback to running instance")
		return true
	}
	return false
}
