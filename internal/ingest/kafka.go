package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"limlog/internal/config"
)

// StartKafka consumes limit-log lines from a topic. A message may carry
// several newline separated lines. Ordering holds within a partition only, so
// producers should key messages by log file.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, out chan<- Line, logger *slog.Logger) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		consumeKafka(ctx, reader.ReadMessage, kafkaRetryDelay, out, logger)
	}()
}

const kafkaRetryDelay = time.Second

// consumeKafka forwards messages from read until ctx is done. A failed read is
// retried after delay.
func consumeKafka(ctx context.Context, read func(context.Context) (kafka.Message, error), delay time.Duration, out chan<- Line, logger *slog.Logger) {
	for {
		m, err := read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err)
			}
			if !BackoffSleep(ctx, delay) {
				return
			}
			continue
		}
		for _, line := range SplitLines(string(m.Value)) {
			if !Send(ctx, out, Line{Text: line, Source: "kafka:" + m.Topic}) {
				return
			}
		}
	}
}

// SplitLines breaks a payload into lines, dropping a trailing empty line.
func SplitLines(payload string) []string {
	payload = strings.TrimRight(payload, "\r\n")
	if payload == "" {
		return nil
	}
	lines := strings.Split(payload, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}
