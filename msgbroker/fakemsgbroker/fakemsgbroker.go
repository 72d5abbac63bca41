package fakemsgbroker

import (
	"context"
	"fmt"
	"sync"

	mbroker "github.com/pikapool/pikapool-api/msgbroker"
)

type FakeMsgBroker struct {
	lock          sync.Mutex
	topicMessages map[string][][]byte

	// PublishErr, if set, is returned by PublishMsg and nothing is recorded.
	PublishErr error
}

var _ mbroker.MsgBroker = (*FakeMsgBroker)(nil)

func New() *FakeMsgBroker {
	return &FakeMsgBroker{
		topicMessages: map[string][][]byte{},
	}
}

func (b *FakeMsgBroker) PublishMsg(ctx context.Context, topicName mbroker.TopicName, data []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.topicMessages[string(topicName)] = append(b.topicMessages[string(topicName)], data)

	return nil
}

// Helpers for tests

func (b *FakeMsgBroker) TotalPublished() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	var count int
	for _, msgs := range b.topicMessages {
		count += len(msgs)
	}

	return count
}

func (b *FakeMsgBroker) TotalPublishedTopic(name mbroker.TopicName) int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.topicMessages[string(name)])
}

func (b *FakeMsgBroker) GetMsg(name mbroker.TopicName, idx int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	topic := b.topicMessages[string(name)]
	if idx >= len(topic) {
		return nil, fmt.Errorf("topic queue has length %d smaller than idx access %d", len(topic), idx)
	}

	return topic[idx], nil
}
