package hardware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parcelhive/parcelhive-backend/pkg/config"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
)

// Command requests understood by the locker firmware.
const (
	requestPrintQR = "print_qr"
	requestOpen    = "open"
)

const defaultPublishTimeout = 10 * time.Second

var errProjectIDRequired = errors.New("gcp project id is required")

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// Channel delivers commands to physical lockers over Pub/Sub. Each locker
// listens on its own topic named "<prefix>-<lockerID>". Delivery is
// fire-and-forget: callers log failures but never roll back relational state
// because of them.
type Channel struct {
	client         *pubsub.Client
	projectID      string
	topicPrefix    string
	publishTimeout time.Duration
	logg           *logger.Logger
	factory        publisherFactory
}

// NewChannel creates a Pub/Sub v2 backed command channel.
func NewChannel(ctx context.Context, cfg config.HardwareConfig, logg *logger.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Channel{
		client:         psClient,
		projectID:      cfg.ProjectID,
		topicPrefix:    cfg.TopicPrefix,
		publishTimeout: cfg.PublishTimeout,
		logg:           logg,
	}
	c.factory = c.gcpPublisher

	if logg != nil {
		logg.Info(ctx, "hardware command channel initialized")
	}
	return c, nil
}

// PrintQR tells the sending locker to print the pickup QR code for an order.
func (c *Channel) PrintQR(ctx context.Context, lockerID, orderID uuid.UUID, code string) error {
	payload := map[string]string{
		"request":  requestPrintQR,
		"order_id": orderID.String(),
		"code":     code,
	}
	return c.publish(ctx, lockerID, payload)
}

// Unlock tells a locker to open one of its cells.
func (c *Channel) Unlock(ctx context.Context, lockerID, cellID uuid.UUID) error {
	payload := map[string]string{
		"request": requestOpen,
		"cell_id": cellID.String(),
	}
	return c.publish(ctx, lockerID, payload)
}

func (c *Channel) publish(ctx context.Context, lockerID uuid.UUID, payload map[string]string) error {
	if c == nil || c.factory == nil {
		return errors.New("hardware channel not initialized")
	}

	topic := c.topicName(lockerID)
	pub := c.factory(topic)
	if pub == nil {
		return fmt.Errorf("publisher not available for topic %s", topic)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding locker command: %w", err)
	}

	timeout := c.publishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	publishCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := pub.Publish(publishCtx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"locker_id": lockerID.String(),
			"request":   payload["request"],
		},
	})
	if result == nil {
		return fmt.Errorf("publish returned nil for topic %s", topic)
	}
	if _, err := result.Get(publishCtx); err != nil {
		// v2 uses gRPC errors; NotFound means the locker topic was never provisioned.
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("locker topic %s does not exist: %w", topic, err)
		}
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (c *Channel) topicName(lockerID uuid.UUID) string {
	prefix := strings.TrimSpace(c.topicPrefix)
	if prefix == "" {
		prefix = "locker"
	}
	return fmt.Sprintf("%s-%s", prefix, lockerID)
}

func (c *Channel) topicResourceName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}

func (c *Channel) gcpPublisher(topic string) publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(topic)
	if fullName == "" {
		return nil
	}
	return &gcpPublisher{Publisher: c.client.Publisher(fullName)}
}

// Ping verifies the underlying client is usable.
func (c *Channel) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("hardware channel not initialized")
	}
	return nil
}

// Close releases the Pub/Sub client resources.
func (c *Channel) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*pubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
