// Package kafka publishes book topics to a Kafka topic. Every book topic has
// its own backlog, so a slow broker collapses pending changes instead of
// stalling the matching goroutine.
package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// NewSyncProducer creates a SyncProducer with a reliable configuration and
// connection retry mechanism.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	// The producer waits for the message to be committed by the broker.
	config.Producer.Return.Successes = true
	// WaitForAll ensures the message is committed by the leader AND all in-sync replicas.
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	// Messages of one book must stay in order, so they share a partition.
	config.Producer.Partitioner = sarama.NewHashPartitioner

	var prod sarama.SyncProducer
	var err error
	for i := 0; i < 10; i++ {
		prod, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			return prod, nil
		}
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to start producer after retries: %w", err)
}
