package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager distributes progress payloads to a set of watermill
// publishers, keyed by topic. Each outgoing message carries a sequence
// number in the order Publish handled it, so subscribers can detect gaps.
type PublisherManager struct {
	publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mu             sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		publishers: make(map[string][]message.Publisher),
	}
}

// SubscribePublisher registers a publisher for a topic.
func (pm *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.publishers[topic] = append(pm.publishers[topic], pub)
}

// Publish serializes the payload to JSON and distributes it to every
// registered publisher on every topic.
func (pm *PublisherManager) Publish(payload interface{}) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", pm.sequenceNumber))
	pm.sequenceNumber++

	for topic, pubs := range pm.publishers {
		for _, pub := range pubs {
			if err := pub.Publish(topic, msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish progress event")
			}
		}
	}

	return nil
}

// PublishBlind publishes and only logs failures. Progress events are
// advisory; a failing subscriber must not stall reconciliation.
func (pm *PublisherManager) PublishBlind(payload interface{}) {
	if err := pm.Publish(payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish progress event")
	}
}
