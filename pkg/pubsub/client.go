// Package pubsub opens the Pub/Sub v2 client the outbox relay publishes
// through and checks that the order and notification topics exist.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotConnected      = errors.New("pubsub client not initialized")
)

// ErrTopicMissing is returned when a configured topic has not been created.
var ErrTopicMissing = errors.New("pubsub topic does not exist")

type Client struct {
	client  *pubsub.Client
	project string
	// topics holds the full resource names of every configured topic.
	topics []string
}

// NewClient connects to Pub/Sub and fails unless every configured topic
// already exists. Topics are provisioned outside the service.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics, err := topicPaths(project, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := pubsub.NewClient(ctx, project, clientOptions(gcp, cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: conn, topics: topics, project: project}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":  project,
			"topics":   topics,
			"emulator": cfg.EmulatorHost != "",
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig, cfg config.PubSubConfig) []option.ClientOption {
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		return []option.ClientOption{
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return nil
}

func topicPaths(project string, cfg config.PubSubConfig) ([]string, error) {
	var paths []string
	seen := map[string]bool{}
	for _, name := range []string{cfg.OrdersTopic, cfg.NotificationTopic} {
		path := resourceName(project, "topics", name)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, errNoTopics
	}
	return paths, nil
}

// Ping looks up every configured topic in parallel.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotConnected
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, path := range c.topics {
		group.Go(func() error {
			_, err := c.client.TopicAdminClient.GetTopic(groupCtx, &pubsubpb.GetTopicRequest{Topic: path})
			switch {
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("%w: %s", ErrTopicMissing, path)
			case err != nil:
				return fmt.Errorf("get topic %s: %w", path, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Publisher returns the v2 publisher for a short topic id or a full
// resource name. Callers own Stop on the returned publisher.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	path := resourceName(c.project, "topics", name)
	if path == "" {
		return nil
	}
	return c.client.Publisher(path)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Full
// resource names pass through.
func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}
