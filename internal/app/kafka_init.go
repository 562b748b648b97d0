package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/config"
	"github.com/vladislavdragonenkov/exopet/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/exopet/internal/version"
)

// initKafkaProducer создаёт producer, если заданы брокеры.
// Недоступный брокер не останавливает запуск: события копятся в outbox.
func initKafkaProducer(cfg config.Config, logger *log.Entry) *kafka.Producer {
	if !cfg.KafkaEnabled() {
		logger.Info("kafka is not configured, order events stay in outbox")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, version.ServiceName)
	if err != nil {
		logger.WithError(err).WithField("brokers", cfg.KafkaBrokers).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithFields(log.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   cfg.KafkaTopic,
	}).Info("kafka producer initialized")
	return producer
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
