package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection for draw events: the outbox relay
// publishes to the draw topic and the notification worker pulls from the
// draw subscription.
type Client struct {
	gcp       *gcppubsub.Client
	project   string
	drawTopic string
	drawSub   string
}

// NewClient connects and refuses to start when the draw topic or
// subscription is missing, so misconfigured workers crash at boot.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}

	conn, err := gcppubsub.NewClient(ctx, project, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		gcp:       conn,
		project:   project,
		drawTopic: strings.TrimSpace(cfg.DrawTopic),
		drawSub:   strings.TrimSpace(cfg.DrawSubscription),
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project":       project,
			"draw_topic":        c.drawTopic,
			"draw_subscription": c.drawSub,
		}), "pubsub client initialized")
	}
	return c, nil
}

// credentialOptions falls back to application default credentials when
// neither inline JSON nor a key file is configured.
func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping confirms the draw topic and subscription both exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.gcp == nil {
		return errNotInitialized
	}
	if c.drawTopic == "" {
		return errors.New("pubsub draw topic is required")
	}
	if c.drawSub == "" {
		return errors.New("pubsub draw subscription is required")
	}

	_, err := c.gcp.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: qualify(c.project, "topics", c.drawTopic),
	})
	if err := describeLookup("topic", c.drawTopic, err); err != nil {
		return err
	}
	_, err = c.gcp.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: qualify(c.project, "subscriptions", c.drawSub),
	})
	return describeLookup("subscription", c.drawSub, err)
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns a handle for topic, which may be a bare ID or a full
// resource name. It returns nil for a blank topic.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	if c == nil || c.gcp == nil {
		return nil
	}
	name := qualify(c.project, "topics", topic)
	if name == "" {
		return nil
	}
	return c.gcp.Publisher(name)
}

// DrawSubscription is where raffle_drawn events are pulled from.
func (c *Client) DrawSubscription() *gcppubsub.Subscriber {
	if c == nil || c.gcp == nil {
		return nil
	}
	return c.gcp.Subscriber(qualify(c.project, "subscriptions", c.drawSub))
}

func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	return c.gcp.Close()
}

// qualify expands a bare ID into projects/<project>/<collection>/<id>.
// Names that are already fully qualified pass through untouched.
func qualify(project, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + name
}
