package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	eventsource "github.com/stalexteam/eventsource_go"
	"go.uber.org/zap"
)

// EventsServer exposes the switcher's change events (video transitions
// and executed player actions) as a Server-Sent Events stream, so
// dashboards or other instances can follow along live.
type EventsServer struct {
	swapper *Swapper
	logger  *zap.SugaredLogger
	server  *http.Server

	stopChannel chan bool
	running     int32 // Atomic flag: 1 = running, 0 = stopped

	// ConnectionManager manages all active SSE connections
	manager *eventsource.ConnectionManager

	// Event counter for SSE id field
	eventID int64

	// Current port (for tracking changes)
	currentPort int
	portMutex   sync.Mutex
}

const (
	// SSE retry timeout in milliseconds
	sseRetryTimeout = 30000

	// Ping interval
	pingInterval = 10 * time.Second
)

// NewEventsServer creates a new events server instance
func NewEventsServer(swapper *Swapper, logger *zap.SugaredLogger) (*EventsServer, error) {
	logger = logger.Named("events_server")

	manager := eventsource.NewConnectionManager()

	manager.SetOnConnect(func(encoder *eventsource.Encoder) {
		logger.Infow("New SSE client connected",
			"remote", encoder.RemoteAddr(),
			"path", encoder.Path())
	})

	manager.SetOnDisconnect(func(encoder *eventsource.Encoder) {
		logger.Debugw("SSE client disconnected",
			"remote", encoder.RemoteAddr(),
			"path", encoder.Path())
	})

	srv := &EventsServer{
		swapper:     swapper,
		logger:      logger,
		stopChannel: make(chan bool),
		manager:     manager,
		eventID:     1,
		currentPort: 0,
	}

	logger.Debug("Created events server instance")

	return srv, nil
}

// Start starts the events server on the configured port. A port of 0
// (the default) leaves the server off.
func (srv *EventsServer) Start() error {
	port := srv.swapper.config.EventsPort
	if port <= 0 {
		srv.logger.Debug("events_port not configured, server will not start")
		return nil
	}

	srv.portMutex.Lock()
	currentPort := srv.currentPort
	srv.portMutex.Unlock()

	// If already running on the same port, no need to restart
	if atomic.LoadInt32(&srv.running) == 1 && currentPort == port {
		srv.logger.Debugw("Events server already running on the same port", "port", port)
		return nil
	}

	// If running on different port, stop first
	if atomic.LoadInt32(&srv.running) == 1 {
		srv.logger.Infow("Events server port changed, restarting", "old_port", currentPort, "new_port", port)
		srv.Stop()
		// Wait a bit for graceful shutdown
		time.Sleep(100 * time.Millisecond)
	}

	handler := eventsource.HandlerV2(func(
		info *eventsource.ConnectionInfo,
		encoder *eventsource.Encoder,
		stop <-chan bool,
	) {
		if err := encoder.SetRetry(sseRetryTimeout); err != nil {
			if eventsource.IsConnectionError(err) {
				srv.logger.Debugw("Error sending retry, connection closed", "error", err)
			} else {
				srv.logger.Debugw("Error sending retry field", "error", err)
			}
			return
		}

		// greet the client so it knows what it's subscribed to
		pingID := atomic.AddInt64(&srv.eventID, 1)
		pingData := map[string]interface{}{
			"title":     "YT-Spotify-Swap",
			"enforcing": srv.swapper.reconciler.Enforcing(),
		}
		pingDataJSON, err := json.Marshal(pingData)
		if err != nil {
			srv.logger.Warnw("Failed to marshal ping data", "error", err)
			return
		}

		pingEvent := eventsource.Event{
			ID:   fmt.Sprintf("%d", pingID),
			Type: "ping",
			Data: pingDataJSON,
		}
		if err := encoder.Encode(pingEvent); err != nil {
			if eventsource.IsConnectionError(err) {
				srv.logger.Debugw("Error sending ping, connection closed", "error", err)
			} else {
				srv.logger.Debugw("Error sending ping event", "error", err)
			}
			return
		}

		// Wait for client disconnect or server stop
		select {
		case <-stop:
			return
		case <-srv.stopChannel:
			return
		}
	})

	// Use HandlerWithManager to automatically manage connections
	handlerWithManager := eventsource.HandlerWithManager(srv.manager, handler)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlerWithManager.ServeHTTP)

	addr := fmt.Sprintf(":%d", port)
	srv.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	srv.portMutex.Lock()
	srv.currentPort = port
	srv.portMutex.Unlock()

	atomic.StoreInt32(&srv.running, 1)

	go func() {
		srv.logger.Infow("Starting events server", "addr", addr)
		if err := srv.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.logger.Errorw("Events server error", "error", err)
			atomic.StoreInt32(&srv.running, 0)
		}
	}()

	// relay the reconciler's change events to all connected clients
	go srv.relayChangeEvents()

	// Start ping goroutine
	go srv.pingLoop()

	return nil
}

// Stop stops the events server
func (srv *EventsServer) Stop() {
	if atomic.LoadInt32(&srv.running) == 0 {
		return
	}

	srv.logger.Debug("Stopping events server")

	// Signal stop
	select {
	case srv.stopChannel <- true:
	default:
	}

	// Close all connections using ConnectionManager
	if srv.manager != nil {
		srv.manager.CloseAll()
		srv.logger.Debugw("Closed all SSE connections", "count", srv.manager.Count())
	}

	// Stop HTTP server with graceful shutdown
	if srv.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.server.Shutdown(ctx); err != nil {
			srv.logger.Warnw("Error during events server shutdown", "error", err)
			srv.server.Close()
		}
	}

	atomic.StoreInt32(&srv.running, 0)

	srv.portMutex.Lock()
	srv.currentPort = 0
	srv.portMutex.Unlock()

	srv.logger.Info("Events server stopped")
}

// IsRunning returns whether the server is currently running
func (srv *EventsServer) IsRunning() bool {
	return atomic.LoadInt32(&srv.running) == 1
}

// relayChangeEvents forwards reconciler change events to all clients
// until the reconciler closes its channel or the server stops.
func (srv *EventsServer) relayChangeEvents() {
	changeChannel := srv.swapper.reconciler.SubscribeToChangeEvents()

	for {
		select {
		case <-srv.stopChannel:
			return
		case change, ok := <-changeChannel:
			if !ok {
				srv.logger.Debug("Change event channel closed, stopping relay")
				return
			}

			srv.broadcastChange(change)
		}
	}
}

func (srv *EventsServer) broadcastChange(change ChangeEvent) {
	if atomic.LoadInt32(&srv.running) == 0 {
		return
	}

	changeJSON, err := json.Marshal(change)
	if err != nil {
		srv.logger.Warnw("Failed to marshal change event for broadcast", "error", err)
		return
	}

	eventID := atomic.AddInt64(&srv.eventID, 1)
	event := eventsource.Event{
		ID:   fmt.Sprintf("%d", eventID),
		Type: "change",
		Data: changeJSON,
	}

	if err := srv.manager.Broadcast(event); err != nil {
		if eventsource.IsConnectionError(err) {
			srv.logger.Debugw("Some connections failed during broadcast", "error", err)
		}
		// ConnectionManager automatically removes failed connections
	}
}

// pingLoop sends ping events periodically to all clients
func (srv *EventsServer) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-srv.stopChannel:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&srv.running) == 0 {
				return
			}

			if srv.manager == nil {
				continue
			}

			pingData := map[string]interface{}{
				"title":     "YT-Spotify-Swap",
				"enforcing": srv.swapper.reconciler.Enforcing(),
			}

			dataJSON, err := json.Marshal(pingData)
			if err != nil {
				srv.logger.Warnw("Failed to marshal ping data", "error", err)
				continue
			}

			eventID := atomic.AddInt64(&srv.eventID, 1)
			event := eventsource.Event{
				ID:   fmt.Sprintf("%d", eventID),
				Type: "ping",
				Data: dataJSON,
			}

			if err := srv.manager.Broadcast(event); err != nil {
				if eventsource.IsConnectionError(err) {
					srv.logger.Debugw("Some connections failed during ping broadcast", "error", err)
				}
				// ConnectionManager automatically removes failed connections
			}
		}
	}
}
