// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package beaconkit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beaconkit/beaconkit/lib/beacon"
	"github.com/beaconkit/beaconkit/lib/cache"
	"github.com/beaconkit/beaconkit/lib/clock"
	"github.com/beaconkit/beaconkit/lib/config"
	"github.com/beaconkit/beaconkit/lib/protocol"
	"github.com/beaconkit/beaconkit/lib/sending"
)

// Config holds construction parameters for an SDK.
type Config struct {
	// Config is the SDK configuration (endpoint, application identity,
	// cache bounds, intervals). Defaults are applied before
	// validation.
	config.Config

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Client overrides the HTTP client. Test use only; when nil a
	// protocol.HTTPClient is built from the configuration.
	Client protocol.Client
}

// SDK is one fully wired beacon transmission pipeline: the record
// cache, its evictor, the sender goroutine, and the session factory.
// All methods are safe for concurrent use.
type SDK struct {
	settings config.Config
	logger   *slog.Logger
	clock    clock.Clock

	cache   *cache.Cache
	evictor *cache.Evictor
	sender  *sending.Context
	worker  *sending.Worker

	stopEvictor context.CancelFunc
	evictorDone chan struct{}

	nextBeaconID atomic.Uint32
	shutdownOnce sync.Once
}

// New validates the configuration and starts the SDK's background
// goroutines. The returned SDK is usable immediately; sessions created
// before initialization completes buffer their records until the
// server handshake succeeds.
func New(cfg Config) (*SDK, error) {
	settings := cfg.Config
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	store := cache.New(cache.Config{
		UpperBound: settings.UpperMemoryBound,
		Logger:     logger,
	})

	client := cfg.Client
	if client == nil {
		httpClient, err := protocol.NewHTTPClient(protocol.HTTPClientConfig{
			BaseURL:       settings.EndpointURL,
			ApplicationID: settings.ApplicationID,
			ServerID:      protocol.DefaultServerConfig().ServerID,
			Timeout:       settings.HTTPTimeout,
			TrustInsecure: settings.TrustInsecure,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		client = httpClient
	}

	sender := sending.NewContext(sending.ContextConfig{
		SDK:    settings,
		Client: client,
		Cache:  store,
		Clock:  clk,
		Logger: logger,
	})

	evictor := cache.NewEvictor(store, cache.EvictorConfig{
		MaxRecordAge: settings.MaxRecordAge,
		LowerBound:   settings.LowerMemoryBound,
		UpperBound:   settings.UpperMemoryBound,
		Clock:        clk,
		Logger:       logger,
	})
	evictorCtx, stopEvictor := context.WithCancel(context.Background())

	sdk := &SDK{
		settings:    settings,
		logger:      logger,
		clock:       clk,
		cache:       store,
		evictor:     evictor,
		sender:      sender,
		worker:      sending.NewWorker(sender),
		stopEvictor: stopEvictor,
		evictorDone: make(chan struct{}),
	}

	sdk.worker.Start()
	go func() {
		defer close(sdk.evictorDone)
		evictor.Run(evictorCtx)
	}()

	return sdk, nil
}

// WaitForInitCompletion blocks until the server handshake finishes
// (either outcome) or the timeout elapses, and reports whether the SDK
// initialized successfully. A non-positive timeout waits without
// bound.
func (s *SDK) WaitForInitCompletion(timeout time.Duration) bool {
	return s.sender.WaitForInitCompletion(timeout)
}

// IsInitialized reports whether the server handshake has succeeded.
func (s *SDK) IsInitialized() bool {
	return s.sender.IsInitialized()
}

// CreateSession opens a new session for the given client IP and
// records its session-start event. After Shutdown the returned session
// is inert: its calls are no-ops.
func (s *SDK) CreateSession(clientIP string) *Session {
	session := &Session{
		sdk:         s,
		key:         cache.Key{BeaconID: s.nextBeaconID.Add(1)},
		clientIP:    clientIP,
		startMillis: s.clock.NowMillis(),
	}
	if s.sender.ShutdownRequested() {
		session.ended.Store(true)
		return session
	}

	s.cache.AddEvent(session.key, beacon.SessionStart(session.startMillis, session.nextSeq()))
	s.sender.StartSession(session.key, clientIP)
	return session
}

// Shutdown flushes buffered sessions, stops the sender and the
// evictor, and waits for both goroutines to exit. Idempotent; after
// the first call returns, the SDK sends no further requests.
func (s *SDK) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.sender.RequestShutdown()
		<-s.worker.Done()
		s.stopEvictor()
		<-s.evictorDone
		s.logger.Info("beacon SDK shut down",
			"evicted_by_age", s.evictor.EvictedByAge(),
			"evicted_by_space", s.evictor.EvictedBySpace(),
		)
	})
}
