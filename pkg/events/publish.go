package events

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

const (
	MetadataSequence  = "sequence_number"
	MetadataEventType = "event_type"
)

// PublisherManager fans payloads out to watermill publishers, each registered under a
// topic. Messages are numbered in the order Publish is called; Event payloads also carry
// their type in the message metadata so subscribers can filter without decoding.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

var _ Publisher = (*PublisherManager)(nil)

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, sub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], sub)
}

// Publish serializes payload to JSON and hands it to every registered publisher. Failing
// publishers are logged and skipped; only a serialization error is returned.
func (s *PublisherManager) Publish(payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set(MetadataSequence, strconv.FormatUint(s.sequenceNumber, 10))
	if e, ok := payload.(Event); ok {
		msg.Metadata.Set(MetadataEventType, string(e.Type))
	}
	s.sequenceNumber++

	for topic, subs := range s.Publishers {
		for _, sub := range subs {
			if err := sub.Publish(topic, msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).Msg("failed to publish")
			}
		}
	}

	return nil
}

// PublishBlind is Publish for callers that have nothing to do with the error.
func (s *PublisherManager) PublishBlind(payload interface{}) {
	if err := s.Publish(payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish")
	}
}

// Published returns how many messages went through Publish.
func (s *PublisherManager) Published() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.sequenceNumber
}
