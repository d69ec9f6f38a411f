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
	"github.com/avvvet/electionday-services/internal/electionsvc/broker"
	"github.com/avvvet/electionday-services/internal/electionsvc/db"
	handlers "github.com/avvvet/electionday-services/internal/electionsvc/handlers"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
	"github.com/avvvet/electionday-services/internal/electionsvc/service"
	"github.com/avvvet/electionday-services/internal/electionsvc/store"
	nats "github.com/avvvet/electionday-services/internal/nats"
)

const SERVICE_NAME = "election"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
}

func main() {

	principals, err := principal.LoadDir(os.Getenv("PRINCIPAL_PATH"), os.Getenv("ENTITIES_DIR"))
	if err != nil {
		log.Fatalf("Failed to load principals: %v", err)
	}
	log.Infof("%d principals loaded", len(principals))

	if err := db.Migrate(os.Getenv("POSTGRES_URL")); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	voteStore := store.NewVoteStore(dbpool)
	electionStore := store.NewElectionStore(dbpool)
	locales := config.Locales()
	resultService := service.NewResultService(voteStore, electionStore, locales)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "_service_" + instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// answers summary requests of the socket service
	b := broker.NewBroker(n.Conn, resultService)
	sub, err := b.QueueSubscribe(comm.ElectionServiceTopic, SERVICE_NAME)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	importService := service.NewImportService(voteStore, electionStore, principals, b,
		service.NewMetrics(registry), locales)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(importService, resultService, registry)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("ELECTION_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
