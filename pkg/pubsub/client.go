// Package pubsub publishes moderation events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/logger"
)

// Client holds the Pub/Sub connection and the moderation topic's publisher.
type Client struct {
	ps        *pubsub.Client
	topic     string
	publisher *pubsub.Publisher
}

// NewClient connects to Pub/Sub and verifies the moderation topic exists.
// Topics are provisioned by infrastructure, never created here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	topic, err := topicName(gcp.ProjectID, cfg.ModerationTopic)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewClient(ctx, strings.TrimSpace(gcp.ProjectID), clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{ps: ps, topic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	c.publisher = ps.Publisher(topic)
	// Events carry the target user as ordering key so a user's decisions arrive in commit order.
	c.publisher.EnableMessageOrdering = true

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub.connected")
	}
	return c, nil
}

// ModerationPublisher returns the publisher for the moderation topic.
func (c *Client) ModerationPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher
}

// Ping confirms the moderation topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub topic %s does not exist", c.topic)
	default:
		return fmt.Errorf("pubsub topic %s: %w", c.topic, err)
	}
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.ps.Close()
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(strings.TrimSpace(gcp.ApplicationCredentials))}
	}
	return nil
}

// topicName expands a bare topic id to projects/<project>/topics/<id>. Full
// resource names pass through unchanged.
func topicName(projectID, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	projectID = strings.TrimSpace(projectID)
	switch {
	case topic == "":
		return "", errors.New("pubsub moderation topic is required")
	case strings.HasPrefix(topic, "projects/"):
		parts := strings.Split(topic, "/")
		if len(parts) != 4 || parts[1] == "" || parts[2] != "topics" || parts[3] == "" {
			return "", fmt.Errorf("malformed topic resource name %q", topic)
		}
		return topic, nil
	case projectID == "":
		return "", errors.New("gcp project id is required")
	}
	return "projects/" + projectID + "/topics/" + topic, nil
}
