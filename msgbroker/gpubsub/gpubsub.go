package gpubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	logger "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/msgbroker"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/option"
)

var log = logger.Logger("gpubsub")

const publishTimeout = time.Second * 10

// PubsubMsgBroker is an implementation of MsgBroker for Google PubSub.
type PubsubMsgBroker struct {
	topicPrefix string

	client          *pubsub.Client
	clientCtx       context.Context
	clientCtxCancel context.CancelFunc

	topicCacheLock sync.Mutex
	topicCache     map[string]*pubsub.Topic

	metrics metricsCollector
}

var _ msgbroker.MsgBroker = (*PubsubMsgBroker)(nil)

// New returns a new *PubsubMsgBroker. topicPrefix is prepended to every topic name, which
// allows several environments to share a project. If apiKey is empty the client uses the
// default credentials, or the emulator if PUBSUB_EMULATOR_HOST is set.
func New(projectID, apiKey, topicPrefix string, opts ...option.ClientOption) (*PubsubMsgBroker, error) {
	if projectID == "" {
		return nil, errors.New("project-id is empty")
	}
	if apiKey != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(apiKey)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating pubsub client: %s", err)
	}

	p := &PubsubMsgBroker{
		topicPrefix:     topicPrefix,
		client:          client,
		clientCtx:       ctx,
		clientCtxCancel: cancel,

		topicCache: map[string]*pubsub.Topic{},
	}
	if err := p.initMetrics(otel.Meter("gpubsub")); err != nil {
		log.Errorf("initializing metrics: %s", err)
		p.metrics = noopMetricsCollector{}
	}
	return p, nil
}

// PublishMsg publishes a message to the desired topic. It waits for the server
// acknowledgement at most 10 seconds.
func (p *PubsubMsgBroker) PublishMsg(ctx context.Context, topicName msgbroker.TopicName, data []byte) (err error) {
	defer func() { p.metrics.onPublish(ctx, string(topicName), err) }()

	topic, err := p.getTopic(ctx, p.topicPrefix+string(topicName))
	if err != nil {
		return fmt.Errorf("get topic: %s", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	pr := topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := pr.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing to pubsub: %s", err)
	}
	log.Debugf("published message %s to topic %s", id, topicName)

	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubsubMsgBroker) Close() error {
	p.topicCacheLock.Lock()
	for _, topic := range p.topicCache {
		topic.Stop()
	}
	p.topicCacheLock.Unlock()

	p.clientCtxCancel()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing pubsub client: %s", err)
	}
	return nil
}

func (p *PubsubMsgBroker) getTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.topicCacheLock.Lock()
	defer p.topicCacheLock.Unlock()
	topic, ok := p.topicCache[name]
	if ok {
		return topic, nil
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	topic = p.client.Topic(name)
	exist, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic exists: %s", err)
	}
	if !exist {
		log.Warnf("creating topic %s", name)
		topic, err = p.client.CreateTopic(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("creating topic %s: %s", name, err)
		}
	}
	p.topicCache[name] = topic

	return topic, nil
}
