package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	pkglog "github.com/shaamilshan/hamme/pkg/log"
)

// channelToTopicAndKey converts a per-user channel to a Kafka topic and
// message key. All users share one topic; the user ID is the key so a
// user's events stay ordered within a partition.
//
//	"matching:user:U1:events" -> topic "matching-events", key "U1"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	prefix, userID, suffix, err := parseUserChannel(channel)
	if err != nil {
		return "", "", err
	}
	return prefix + "-" + strings.ReplaceAll(suffix, "_", "-"), userID, nil
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

// KafkaPubSub implements PubSub on Apache Kafka.
type KafkaPubSub struct {
	producer      *kafka.Producer
	subscriptions map[string][]*kafkaSubscription
	config        KafkaConfig
	mu            sync.Mutex
	doneCh        chan struct{}
}

// NewKafkaPubSub creates a Kafka producer and ensures the events topic exists.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer:      p,
		subscriptions: make(map[string][]*kafkaSubscription),
		config:        cfg,
		doneCh:        make(chan struct{}),
	}

	go kps.deliveryReportHandler()

	topic, _, _ := channelToTopicAndKey(UserEventsChannel("_"))
	if err := kps.ensureTopic(topic); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure kafka topic (may already exist)")
	}

	return kps, nil
}

func (k *KafkaPubSub) ensureTopic(topic string) error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

func (k *KafkaPubSub) deliveryReportHandler() {
	l := pkglog.L()
	for e := range k.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l.Warn().Err(ev.TopicPartition.Error).Msg("kafka pubsub delivery failed")
		}
	}
	close(k.doneCh)
}

// Publish produces the event to the channel's topic keyed by user ID.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Subscribe consumes the channel's topic and forwards only messages keyed
// by the channel's user. Every subscription uses its own consumer group so
// each listener sees every message.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, userID, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel: %w", err)
	}

	groupID := k.config.GroupID
	if groupID == "" {
		groupID = "hamme"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           fmt.Sprintf("%s-%s-%d", groupID, sanitizeGroupID(userID), time.Now().UnixNano()),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{consumer: c, cancel: cancel}

	k.mu.Lock()
	k.subscriptions[channel] = append(k.subscriptions[channel], sub)
	k.mu.Unlock()

	eventCh := make(chan *Event, 100)
	go k.consumeMessages(subCtx, channel, sub, eventCh, userID)
	return eventCh, nil
}

func (k *KafkaPubSub) consumeMessages(ctx context.Context, channel string, sub *kafkaSubscription, eventCh chan<- *Event, userID string) {
	defer close(eventCh)
	defer k.remove(channel, sub)
	l := pkglog.L()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := sub.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if string(e.Key) != userID {
				continue
			}

			var event Event
			if err := json.Unmarshal(e.Value, &event); err != nil {
				l.Warn().Err(err).Msg("kafka pubsub: dropping malformed event")
				continue
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
			}

		case kafka.Error:
			l.Warn().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka pubsub error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) remove(channel string, sub *kafkaSubscription) {
	k.mu.Lock()
	subs := k.subscriptions[channel]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(k.subscriptions, channel)
	} else {
		k.subscriptions[channel] = subs
	}
	k.mu.Unlock()

	sub.consumer.Close()
}

// Unsubscribe stops every local subscription to channel.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	subs := k.subscriptions[channel]
	k.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}

// Close stops all subscriptions, flushes and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for _, subs := range k.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	k.mu.Unlock()

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.doneCh
	return nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}
