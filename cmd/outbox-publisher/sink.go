package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// topicSinks caches one Pub/Sub publisher per topic.
type topicSinks struct {
	source publisherSource

	mu    sync.Mutex
	sinks map[string]sink
}

func newTopicSinks(source publisherSource) *topicSinks {
	return &topicSinks{source: source, sinks: make(map[string]sink)}
}

func (t *topicSinks) lookup(topic string) sink {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sinks[topic]; ok {
		return s
	}
	p := t.source.Publisher(topic)
	if p == nil {
		return nil
	}
	s := gcpSink{publisher: p}
	t.sinks[topic] = s
	return s
}

type gcpSink struct {
	publisher *gcppubsub.Publisher
}

func (g gcpSink) Send(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	return g.publisher.Publish(ctx, msg).Get(ctx)
}

// stop flushes and releases every publisher handed out so far.
func (t *topicSinks) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, s := range t.sinks {
		if g, ok := s.(gcpSink); ok {
			g.publisher.Stop()
		}
		delete(t.sinks, topic)
	}
}
