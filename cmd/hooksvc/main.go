package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/electionday-services/configs"
	"github.com/avvvet/electionday-services/internal/comm"
	"github.com/avvvet/electionday-services/internal/electionsvc/db"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
	"github.com/avvvet/electionday-services/internal/electionsvc/service"
	"github.com/avvvet/electionday-services/internal/electionsvc/store"
	"github.com/avvvet/electionday-services/internal/electionsvc/webhook"
	"github.com/avvvet/electionday-services/internal/hooksvc/broker"
	natscli "github.com/avvvet/electionday-services/internal/nats"
)

const SERVICE_NAME = "hooks"

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

	// pg connection, the schema is migrated by the election service
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	results := service.NewResultService(store.NewVoteStore(dbpool), store.NewElectionStore(dbpool), config.Locales())
	worker := webhook.NewWorker(principals, store.NewNotificationStore(dbpool), results, webhook.NewDispatcher(nil))

	// connect to NATS
	n, err := natscli.Connect(SERVICE_NAME + "_service_" + instanceId)
	if err != nil {
		log.Fatalf("unable to connect to NATS: %v", err)
	}
	defer n.Conn.Close()
	log.Infof("NATS connected at %s", n.Url)

	b := broker.NewBroker(n.Conn, worker)
	sub, err := b.QueueSubscribe(comm.ResultsChangedTopic, SERVICE_NAME)
	if err != nil {
		log.Fatalf("subscribe error: %v", err)
	}
	log.Infof("%s service waiting for %s events", SERVICE_NAME, comm.ResultsChangedTopic)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Drain(); err != nil {
		log.Errorf("drain subscription: %v", err)
	}
	log.Infof("%s service stopped", SERVICE_NAME)
}
