package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/electionday-services/configs"
	"github.com/avvvet/electionday-services/internal/comm"
	"github.com/avvvet/electionday-services/internal/db"
	"github.com/avvvet/electionday-services/internal/nats"
	"github.com/avvvet/electionday-services/internal/socketsvc/broker"
	"github.com/avvvet/electionday-services/internal/socketsvc/chat"
	"github.com/avvvet/electionday-services/internal/socketsvc/routes"
	"github.com/avvvet/electionday-services/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
}

func main() {
	// chat transcripts
	database, err := db.ConnectToDB()
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Disconnect(database)

	retentionDays, err := strconv.Atoi(os.Getenv("CHAT_RETENTION_DAYS"))
	if err != nil {
		retentionDays = 30
	}
	chats := chat.NewMongoStore(database, time.Duration(retentionDays)*24*time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := chats.EnsureIndexes(ctx); err != nil {
		log.Errorf("Error creating chat indexes: %v", err)
	}
	cancel()

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "_service_" + instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	token := os.Getenv("SOCKET_MANAGE_TOKEN")
	if token == "" {
		log.Warn("SOCKET_MANAGE_TOKEN is not set, managing clients can't authenticate")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s := ws.NewWs(token, chats, ws.NewMetrics(registry))

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Initialize routes
	routes.SetRoutes(r, s, chats, registry)

	// relay results-changed events to the listeners of the principal
	b := broker.NewBroker(n.Conn, s.Notify)
	sub, err := b.Subscribe(comm.ResultsChangedTopic)
	if err != nil {
		log.Errorf("Error: unable to subscribe to topic %v", err)
		os.Exit(1)
	}

	// Create server with timeout settings
	server := &http.Server{
		Addr:        ":" + os.Getenv("SOCKET_SERVICE_PORT"),
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sub.Unsubscribe()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
