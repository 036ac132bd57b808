package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// requester is the subset of *kgo.Client used for admin requests.
type requester interface {
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
}

var _ requester = (*kgo.Client)(nil)

// createTopicIfNotExists issues a CreateTopics request. An existing topic is
// not an error.
func createTopicIfNotExists(ctx context.Context, client requester, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	if partitions <= 0 {
		return fmt.Errorf("partitions must be greater than 0")
	}
	if replicationFactor <= 0 {
		return fmt.Errorf("replication factor must be greater than 0")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = topic
	t.NumPartitions = partitions
	t.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, t)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	created, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}

	for _, tr := range created.Topics {
		err := kerr.ErrorForCode(tr.ErrorCode)
		switch {
		case err == nil:
			slog.Info("topic created successfully",
				slog.String("topic", tr.Topic),
				slog.Int("partitions", int(partitions)),
				slog.Int("replication_factor", int(replicationFactor)))
		case errors.Is(err, kerr.TopicAlreadyExists):
			slog.Info("topic already exists", slog.String("topic", tr.Topic))
		default:
			msg := ""
			if tr.ErrorMessage != nil {
				msg = *tr.ErrorMessage
			}
			return fmt.Errorf("create topic %s: %w: %s", tr.Topic, err, msg)
		}
	}
	return nil
}
