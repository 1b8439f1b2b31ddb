package mq

import (
	"encoding/json"
	"log"

	"creditledger/internal/audit"
	"creditledger/internal/config"
	"creditledger/internal/model"

	"github.com/IBM/sarama"
)

var KafkaProducer sarama.SyncProducer

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	KafkaProducer = producer
	log.Println("Kafka 生产者创建成功")
	return producer
}

// CloseKafka 关闭 Kafka 生产者
func CloseKafka() {
	if KafkaProducer != nil {
		KafkaProducer.Close()
	}
}

// AuditPublisher 把审计日志投递到 Kafka，供下游风控/报表消费。
// 投递失败不影响主流程，审计记录器只会记一条告警日志。
type AuditPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewAuditPublisher(producer sarama.SyncProducer, topic string) *AuditPublisher {
	return &AuditPublisher{producer: producer, topic: topic}
}

var _ audit.Publisher = (*AuditPublisher)(nil)

// Publish 按用户分区投递，同一用户的审计事件保序
func (p *AuditPublisher) Publish(entry *model.AuditLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(entry.UserID),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}
