package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/bidstore"
	"github.com/pikapool/pikapool-api/cache"
	"github.com/pikapool/pikapool-api/cmd/bidd/admission"
	"github.com/pikapool/pikapool-api/cmd/bidd/httpapi"
	"github.com/pikapool/pikapool-api/cmd/bidd/rediscache"
	"github.com/pikapool/pikapool-api/cmd/bidd/store"
	"github.com/pikapool/pikapool-api/connguard"
	"github.com/pikapool/pikapool-api/msgbroker"
	"github.com/pikapool/pikapool-api/msgbroker/gpubsub"
)

var log = logging.Logger("service")

// Config is the service config.
type Config struct {
	// HTTPListenAddr is where the API is served. If empty no server is started, which is
	// what happens when running under AWS Lambda.
	HTTPListenAddr string

	RedisURL    string
	PostgresURI string

	// GPubsubProjectID enables publishing admitted bids. If empty they aren't published.
	GPubsubProjectID     string
	GPubsubAPIKey        string
	MsgBrokerTopicPrefix string
}

// Service is the bid admission daemon.
type Service struct {
	config Config

	cache    *rediscache.Cache
	store    *store.Store
	mb       *gpubsub.PubsubMsgBroker
	admitter *admission.Admitter
	handler  http.Handler

	httpAPIServer *http.Server
}

// New returns a new Service. Connections to Redis and Postgres are established by the
// first request that needs them.
func New(config Config) (*Service, error) {
	c, err := rediscache.New(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("creating redis cache: %s", err)
	}
	st, err := store.New(config.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("creating bid store: %s", err)
	}

	var (
		mb  msgbroker.MsgBroker
		pmb *gpubsub.PubsubMsgBroker
	)
	if config.GPubsubProjectID != "" {
		pmb, err = gpubsub.New(config.GPubsubProjectID, config.GPubsubAPIKey, config.MsgBrokerTopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("creating google pubsub client: %s", err)
		}
		mb = pmb
	} else {
		log.Warn("no pubsub project configured, admitted bids won't be published")
	}

	a, err := admission.New(
		connguard.New[cache.Cache]("cache", c),
		connguard.New[bidstore.Store]("store", st),
		mb)
	if err != nil {
		return nil, fmt.Errorf("creating admitter: %s", err)
	}

	s := &Service{
		config:   config,
		cache:    c,
		store:    st,
		mb:       pmb,
		admitter: a,
		handler:  httpapi.NewHandler(a),
	}

	if config.HTTPListenAddr != "" {
		s.httpAPIServer, err = httpapi.NewServer(config.HTTPListenAddr, a)
		if err != nil {
			return nil, fmt.Errorf("creating http server: %s", err)
		}
	}
	return s, nil
}

// Handler returns the API handler.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Close stops serving and closes the connections.
func (s *Service) Close() error {
	var errs []string

	if s.httpAPIServer != nil {
		if err := s.httpAPIServer.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("closing http api server: %s", err))
		}
	}
	if s.mb != nil {
		if err := s.mb.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("closing msgbroker: %s", err))
		}
	}
	if err := s.cache.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("closing cache: %s", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("closing store: %s", err))
	}

	if errs != nil {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}
