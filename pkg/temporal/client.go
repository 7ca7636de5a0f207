package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orca-so/sedimentology/pkg/retry"
	"github.com/orca-so/sedimentology/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/durationpb"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

type Client struct {
	TClient   client.Client
	TSClient  client.ScheduleClient
	Namespace string
	HostPort  string
	logger    *zap.Logger

	// Task Queues
	SequencerQueue string // sequencer - forward sequencer runs, one at a time
	BackfillQueue  string // backfill - backfill sequencer runs, one at a time
	ProcessorQueue string // processor - one workflow per pending slot

	// Schedule IDs
	SequencerScheduleID         string
	BackfillSequencerScheduleID string
}

// Health reports connectivity and the pollers seen on each queue.
type Health struct {
	ConnectionOK bool          `json:"connection_ok"`
	Queues       []QueueHealth `json:"queues"`
}

// QueueHealth is the backlog and poller view of one task queue.
type QueueHealth struct {
	Name                 string  `json:"name"`
	Pollers              int     `json:"pollers"`
	PendingWorkflowTasks int64   `json:"pending_workflow_tasks"`
	PendingActivityTasks int64   `json:"pending_activity_tasks"`
	BacklogAgeSeconds    float64 `json:"backlog_age_seconds"`
	Error                string  `json:"error,omitempty"`
}

// NewClient connects to the namespace named by TEMPORAL_NAMESPACE, retrying
// until the frontend answers health checks.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", DefaultNamespace)
	loggerWrapper := NewZapAdapter(logger)

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))

	var tClient client.Client
	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "temporal_connection", func() error {
		var err error
		tClient, err = Dial(connCtx, host, ns, loggerWrapper)
		if err != nil {
			return err
		}
		if _, err = tClient.CheckHealth(connCtx, nil); err != nil {
			tClient.Close()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		TClient:   tClient,
		TSClient:  tClient.ScheduleClient(),
		Namespace: ns,
		HostPort:  host,
		logger:    logger,

		SequencerQueue: QueueSequencer,
		BackfillQueue:  QueueBackfill,
		ProcessorQueue: QueueProcessor,

		SequencerScheduleID:         ScheduleSequencer,
		BackfillSequencerScheduleID: ScheduleBackfillSequencer,
	}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// EnsureNamespace registers the namespace when it does not exist yet.
func (c *Client) EnsureNamespace(ctx context.Context, retention time.Duration) error {
	nsClient, err := client.NewNamespaceClient(client.Options{
		HostPort: c.HostPort,
		Logger:   NewZapAdapter(c.logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create namespace client: %w", err)
	}
	defer nsClient.Close()

	_, err = nsClient.Describe(ctx, c.Namespace)
	if err == nil {
		return nil
	}

	var notFound *serviceerror.NamespaceNotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe namespace: %w", err)
	}

	c.logger.Info("Registering Temporal namespace", zap.String("namespace", c.Namespace))
	err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
		Namespace:                        c.Namespace,
		WorkflowExecutionRetentionPeriod: durationpb.New(retention),
	})
	var exists *serviceerror.NamespaceAlreadyExists
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("failed to register namespace: %w", err)
	}
	return nil
}

// GetQueueStats fetches queue statistics using the DescribeTaskQueueEnhanced API.
func (c *Client) GetQueueStats(ctx context.Context, queueName string) (QueueHealth, error) {
	out := QueueHealth{Name: queueName}
	desc, err := c.TClient.DescribeTaskQueueEnhanced(ctx, client.DescribeTaskQueueEnhancedOptions{
		TaskQueue: queueName,
		TaskQueueTypes: []client.TaskQueueType{
			client.TaskQueueTypeWorkflow,
			client.TaskQueueTypeActivity,
		},
		ReportPollers: true,
		ReportStats:   true,
	})
	if err != nil {
		return out, fmt.Errorf("describe task queue enhanced failed: %w", err)
	}

	//nolint:staticcheck // VersionsInfo is the only view that carries stats for unversioned queues
	for _, versionInfo := range desc.VersionsInfo {
		if wfInfo, ok := versionInfo.TypesInfo[client.TaskQueueTypeWorkflow]; ok {
			out.Pollers += len(wfInfo.Pollers)
			if wfInfo.Stats != nil {
				out.PendingWorkflowTasks += wfInfo.Stats.ApproximateBacklogCount
				out.BacklogAgeSeconds = max(out.BacklogAgeSeconds, wfInfo.Stats.ApproximateBacklogAge.Seconds())
			}
		}
		if actInfo, ok := versionInfo.TypesInfo[client.TaskQueueTypeActivity]; ok {
			out.Pollers += len(actInfo.Pollers)
			if actInfo.Stats != nil {
				out.PendingActivityTasks += actInfo.Stats.ApproximateBacklogCount
				out.BacklogAgeSeconds = max(out.BacklogAgeSeconds, actInfo.Stats.ApproximateBacklogAge.Seconds())
			}
		}
	}
	return out, nil
}

// Health returns the health of the Temporal client and its queues.
func (c *Client) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	h := Health{}
	if _, err := c.TClient.CheckHealth(ctx, nil); err == nil {
		h.ConnectionOK = true
	}
	for _, q := range []string{c.SequencerQueue, c.BackfillQueue, c.ProcessorQueue} {
		stats, err := c.GetQueueStats(ctx, q)
		if err != nil {
			stats.Error = err.Error()
		}
		h.Queues = append(h.Queues, stats)
	}
	return h
}

// Close closes the underlying Temporal client connection.
func (c *Client) Close() {
	if c.TClient != nil {
		c.TClient.Close()
	}
}
