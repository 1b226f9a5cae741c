// dlq-reprocess переигрывает события заказов из DLQ обратно в рабочий топик.
// По умолчанию — dry-run: показывает кандидатов, ничего не публикуя.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/messaging/kafka"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// deadLetter — то, что outbox worker кладёт в payload DLQ-конверта.
type deadLetter struct {
	OutboxID     string          `json:"outbox_id"`
	AggregateID  string          `json:"aggregate_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	PublishError string          `json:"publish_error"`
}

// dlqRecord — внешний конверт сообщения в DLQ-топике.
type dlqRecord struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// replayEvent — восстановленный конверт для рабочего топика; совпадает по
// форме с тем, что публикует OutboxTopicPublisher.
type replayEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

type partitionMessages interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// dlqReader читает DLQ-топик по партициям.
type dlqReader interface {
	Partitions(topic string) ([]int32, error)
	Offsets(topic string, partition int32) (oldest, newest int64, err error)
	Consume(topic string, partition int32, offset int64) (partitionMessages, error)
	Close() error
}

// replayWriter публикует восстановленные события.
type replayWriter interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaReader struct {
	client   sarama.Client
	consumer sarama.Consumer
}

func (r *saramaReader) Partitions(topic string) ([]int32, error) {
	return r.client.Partitions(topic)
}

func (r *saramaReader) Offsets(topic string, partition int32) (int64, int64, error) {
	oldest, err := r.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, err
	}
	newest, err := r.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, err
	}
	return oldest, newest, nil
}

func (r *saramaReader) Consume(topic string, partition int32, offset int64) (partitionMessages, error) {
	return r.consumer.ConsumePartition(topic, partition, offset)
}

func (r *saramaReader) Close() error {
	if r.consumer != nil {
		_ = r.consumer.Close()
	}
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// openKafka подменяется в тестах.
var openKafka = func(cfg config) (dlqReader, replayWriter, error) {
	clientCfg := sarama.NewConfig()
	clientCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to kafka %v: %w", cfg.brokers, err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	reader := &saramaReader{client: client, consumer: consumer}

	if !cfg.execute {
		return reader, nil, nil
	}

	producerCfg := sarama.NewConfig()
	producerCfg.Producer.Idempotent = true
	producerCfg.Producer.RequiredAcks = sarama.WaitForAll
	producerCfg.Net.MaxOpenRequests = 1
	producerCfg.Producer.Retry.Max = 5
	producerCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerCfg)
	if err != nil {
		_ = reader.Close()
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return reader, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)

	var (
		cfg        config
		brokersRaw string
	)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	fs.IntVar(&cfg.limit, "limit", 100, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	reader, writer, err := openKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if writer != nil {
			_ = writer.Close()
		}
		_ = reader.Close()
	}()

	return replay(ctx, cfg, reader, writer)
}

func replay(ctx context.Context, cfg config, reader dlqReader, writer replayWriter) error {
	if cfg.execute && writer == nil {
		return errors.New("producer is required in execute mode")
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":         mode,
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
	}).Info("starting dlq replay")

	partitions, err := reader.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for %s: %w", cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var scanned, replayed, skipped int
	for _, partition := range partitions {
		if scanned >= cfg.limit {
			break
		}
		s, r, k, err := replayPartition(ctx, cfg, reader, writer, partition, cfg.limit-scanned)
		if err != nil {
			return err
		}
		scanned += s
		replayed += r
		skipped += k
	}

	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  scanned,
		"replayed": replayed,
		"skipped":  skipped,
	}).Info("dlq replay finished")

	return nil
}

func replayPartition(
	ctx context.Context,
	cfg config,
	reader dlqReader,
	writer replayWriter,
	partition int32,
	limit int,
) (scanned, replayed, skipped int, err error) {
	oldest, newest, err := reader.Offsets(cfg.sourceTopic, partition)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("offsets for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return 0, 0, 0, nil
	}

	start := oldest
	if cfg.fromNewest {
		if start = newest - int64(limit); start < oldest {
			start = oldest
		}
	}

	messages, err := reader.Consume(cfg.sourceTopic, partition, start)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = messages.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for scanned < limit {
		select {
		case <-ctx.Done():
			return scanned, replayed, skipped, ctx.Err()

		case consumeErr := <-messages.Errors():
			if consumeErr != nil {
				return scanned, replayed, skipped, fmt.Errorf("partition %d: %w", partition, consumeErr)
			}

		case <-idle.C:
			return scanned, replayed, skipped, nil

		case msg, ok := <-messages.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return scanned, replayed, skipped, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			scanned++

			key, value, decodeErr := rebuildEvent(msg.Value)
			if decodeErr != nil {
				skipped++
				log.WithError(decodeErr).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip undecodable dlq message")
			} else if cfg.execute {
				_, _, sendErr := writer.SendMessage(&sarama.ProducerMessage{
					Topic:     cfg.targetTopic,
					Key:       sarama.StringEncoder(key),
					Value:     sarama.ByteEncoder(value),
					Timestamp: time.Now().UTC(),
				})
				if sendErr != nil {
					return scanned, replayed, skipped, fmt.Errorf("replay offset %d: %w", msg.Offset, sendErr)
				}
				replayed++
			} else {
				log.WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
					"key":       key,
				}).Info("dlq replay candidate")
				replayed++
			}

			if msg.Offset+1 >= newest {
				return scanned, replayed, skipped, nil
			}
		}
	}

	return scanned, replayed, skipped, nil
}

// rebuildEvent разворачивает DLQ-запись и собирает событие для рабочего
// топика: исходный payload, идентификаторы из dead letter, свежий published_at.
func rebuildEvent(raw []byte) (key string, value []byte, err error) {
	var record dlqRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", nil, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(record.Payload) == 0 {
		return "", nil, errors.New("dlq record has no payload")
	}

	var dead deadLetter
	if err := json.Unmarshal(record.Payload, &dead); err != nil {
		return "", nil, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return "", nil, errors.New("dead letter has no original event payload")
	}

	event := replayEvent{
		ID:            pick(dead.OutboxID, record.ID),
		AggregateType: record.AggregateType,
		AggregateID:   pick(dead.AggregateID, record.AggregateID),
		EventType:     pick(dead.EventType, record.EventType),
		Payload:       dead.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	value, err = json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("encode replay event: %w", err)
	}

	return pick(event.AggregateID, event.ID), value, nil
}

func pick(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
