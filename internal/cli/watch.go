package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Weave/internal/mq"
	"github.com/shaiso/Weave/internal/telemetry"
)

// NewWatchCmd создаёт команду подписки на события выполнения.
func NewWatchCmd(outputFn func() *Output) *cobra.Command {
	var amqpURL string

	cmd := &cobra.Command{
		Use:   "watch [EXECUTION_ID]",
		Short: "Stream node status events from RabbitMQ",
		Long: `Stream node.status and execution.completed events.

With EXECUTION_ID only that execution is shown and the command exits
when it completes. Without it all events are shown until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var executionID string
			if len(args) == 1 {
				executionID = args[0]
			}

			logger := telemetry.NewLogger(os.Stderr)

			conn, err := mq.NewConnection(amqpURL, "weave-cli", logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			queue, err := mq.DeclareEventQueue(ctx, conn, mq.RoutingKeyAllEvents)
			if err != nil {
				return err
			}

			w := &eventWatcher{out: outputFn(), executionID: executionID, done: cancel}
			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue:    queue,
				Handler:  w.handle,
				Prefetch: 50,
				AutoAck:  true,
			})

			err = consumer.Start(ctx)
			if w.completed || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", mq.URLFromEnv(), "RabbitMQ URL")

	return cmd
}

// eventWatcher печатает события выбранного execution.
type eventWatcher struct {
	out         *Output
	executionID string
	done        context.CancelFunc
	completed   bool
}

func (w *eventWatcher) handle(_ context.Context, d *mq.Delivery) error {
	switch d.Message.Type {
	case mq.MessageTypeNodeStatus:
		ev, err := mq.ParsePayload[mq.NodeStatusPayload](&d.Message)
		if err != nil {
			return err
		}
		if !w.matches(ev.ExecutionID.String()) {
			return nil
		}
		w.print(ev, fmt.Sprintf("%s  %-10s %s",
			ev.Timestamp.Format("15:04:05.000"), ev.Status, ev.NodeID))

	case mq.MessageTypeExecutionCompleted:
		ev, err := mq.ParsePayload[mq.ExecutionCompletedPayload](&d.Message)
		if err != nil {
			return err
		}
		if !w.matches(ev.ExecutionID.String()) {
			return nil
		}
		line := fmt.Sprintf("execution %s %s in %dms", ev.ExecutionID, ev.Status, ev.DurationMs)
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		w.print(ev, line)

		if w.executionID != "" {
			w.completed = true
			w.done()
		}
	}
	return nil
}

func (w *eventWatcher) matches(executionID string) bool {
	return w.executionID == "" || w.executionID == executionID
}

func (w *eventWatcher) print(payload any, line string) {
	if w.out.IsJSON() {
		w.out.JSON(payload)
		return
	}
	w.out.Line(line)
}
