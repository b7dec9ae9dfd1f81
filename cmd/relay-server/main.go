package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/config"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/httpapi"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/hub"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/telemetry"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Kiosk displays and teller stations connect from file:// and LAN
	// origins, so the relay accepts everyone and relies on the network
	// perimeter.
	CheckOrigin: func(*http.Request) bool { return true },
}

func main() {
	cfg := config.LoadRelay()
	shutdownTelemetry := telemetry.Setup("relay-server")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	h := hub.New()
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimit,
		Burst:     cfg.RateBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(expvar.Handler(), "metrics"))
	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), "healthz"))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(h, w, r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.LoggingMiddleware(limiter.Middleware(mux)),
		ReadTimeout:  0, // WebSocket connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("relay-server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := h.SweepExpiredTickets(cfg.TicketRetention); removed > 0 {
					log.Printf("sweep removed=%d retention=%s", removed, cfg.TicketRetention)
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// serveWS upgrades the connection, greets with welcome plus a full snapshot,
// then pumps frames into the hub until the peer goes away.
func serveWS(h *hub.Hub, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 32)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Send {
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	count := h.Register(client)
	log.Printf("client connected id=%s remote=%s clients=%d", client.ID, r.RemoteAddr, count)
	defer func() {
		h.Unregister(client)
		<-done
		ws.Close()
		log.Printf("client disconnected id=%s clients=%d", client.ID, h.ClientCount())
	}()

	if data, err := h.WelcomeMessage().Encode(); err == nil {
		client.Send <- data
	}
	if data, err := h.SnapshotMessage().Encode(); err == nil {
		client.Send <- data
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.HandleFrame(client, raw)
	}
}
