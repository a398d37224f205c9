package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/turtacn/molx/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molx/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molx/pkg/errors"
)

// NewEventsCmd creates the events command group.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow dataset build notifications",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var (
		group         string
		fromBeginning bool
		limit         int
	)

	cmd := &cobra.Command{
		Use:     "tail",
		Short:   "Print dataset.processed events as they arrive",
		Example: "  molx events tail --from-beginning --limit 5 -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ev := cliCtx.Config.Events
			if len(ev.Brokers) == 0 {
				return errors.New(errors.ErrCodeBadRequest, "events.brokers is not configured")
			}
			reset := "latest"
			if fromBeginning {
				reset = "earliest"
			}
			consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:         ev.Brokers,
				GroupID:         group,
				Topic:           ev.Topic,
				AutoOffsetReset: reset,
			}, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			handler := newEventPrinter(cmd.OutOrStdout(), cliCtx.OutputFormat, limit, cancel)
			if err := consumer.Run(ctx, handler); err != nil {
				return err
			}
			cliCtx.Logger.Debug("event tail finished",
				logging.Int64("processed", consumer.Processed()),
				logging.Int64("failed", consumer.Failed()))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&group, "group", "molx-events-tail", "consumer group id")
	f.BoolVar(&fromBeginning, "from-beginning", false, "start from the oldest retained event when the group has no offset")
	f.IntVar(&limit, "limit", 0, "stop after this many events (0 follows forever)")
	return cmd
}

// newEventPrinter decodes dataset.processed envelopes and writes one entry
// per event to w. Other event types are skipped. After limit printed
// events, done is called.
func newEventPrinter(w io.Writer, format string, limit int, done func()) kafka.MessageHandler {
	var printed atomic.Int64
	return func(ctx context.Context, msg *kafka.Message) error {
		env, err := kafka.MessageToEventEnvelope(msg)
		if err != nil {
			return err
		}
		if env.EventType != kafka.EventDatasetProcessed {
			return nil
		}
		var p kafka.DatasetProcessedPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		switch strings.ToLower(format) {
		case "json", "yaml":
			line, err := json.Marshal(&p)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "encode event")
			}
			fmt.Fprintln(w, string(line))
		default:
			fmt.Fprintln(w, formatProcessedEvent(&p))
		}

		if n := printed.Add(1); limit > 0 && n >= int64(limit) && done != nil {
			done()
		}
		return nil
	}
}

func formatProcessedEvent(p *kafka.DatasetProcessedPayload) string {
	names := make([]string, 0, len(p.Splits))
	for name := range p.Splits {
		names = append(names, name)
	}
	sort.Strings(names)
	counts := make([]string, 0, len(names))
	for _, name := range names {
		counts = append(counts, name+"="+humanize.Comma(int64(p.Splits[name])))
	}
	return fmt.Sprintf("%s  %s/%s  build=%s  %s  took %s",
		p.ProcessedAt.Format("2006-01-02T15:04:05Z07:00"),
		p.Dataset, p.SplitMode, p.BuildID,
		strings.Join(counts, " "),
		p.Duration.Round(1e6))
}
