// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
	"github.com/sigysmund/function-image-upload-resize/internal/pubsub"
)

func init() {
	var eventFile string

	cmd := &cobra.Command{
		Use:   "convert [object-url...]",
		Short: "convert specific objects once, for backfills and debugging",
		Long: `Convert the given object URLs into every configured variant.

With --event, a raw notification payload (Event Grid, S3 or GCS JSON) is read
from the file, or from stdin when the file is "-", and fed through the same
parser the listeners use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && eventFile == "" {
				return errors.New("need at least one object url or --event")
			}

			addlAttrs := attribute.NewSet(attribute.String("action", "convert"))
			doneCtx, doneFx, err := setupTelemetry("image-variant-worker-convert", &addlAttrs)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			notifications, err := readNotifications(args, eventFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			converter, err := newConverter(doneCtx, cfg)
			if err != nil {
				return err
			}
			return runConvert(doneCtx, converter, notifications, cfg.Conversion.Timeout, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&eventFile, "event", "", "notification payload file, or - for stdin")

	rootCmd.AddCommand(cmd)
}

func readNotifications(urls []string, eventFile string, stdin io.Reader) ([]imageconv.Notification, error) {
	var out []imageconv.Notification
	for _, u := range urls {
		out = append(out, pubsub.NotificationForURL(u))
	}
	if eventFile == "" {
		return out, nil
	}

	var (
		raw []byte
		err error
	)
	if eventFile == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(eventFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading event payload: %w", err)
	}

	res, err := pubsub.ParseNotifications(raw)
	if err != nil {
		return nil, err
	}
	if res.ValidationCode != "" {
		return nil, fmt.Errorf("%w: payload is a subscription validation event", imageconv.ErrMalformedEvent)
	}
	return append(out, res.Notifications...), nil
}

// runConvert handles each notification in turn and prints one line per
// notification. Every failure is collected into the returned error.
func runConvert(ctx context.Context, h pubsub.NotificationHandler, notifications []imageconv.Notification, timeout time.Duration, w io.Writer) error {
	var result *multierror.Error
	for _, n := range notifications {
		report, err := handleWithTimeout(ctx, h, n, timeout)
		switch {
		case err != nil:
			fmt.Fprintf(w, "%s\trejected\t%v\n", n.URL, err)
			result = multierror.Append(result, err)
		case report.Unsupported:
			fmt.Fprintf(w, "%s\tskipped\t%s\n", n.URL, report.SkipReason)
		case report.NoPayload:
			fmt.Fprintf(w, "%s\tfailed\t%s\n", n.URL, report.SkipReason)
			result = multierror.Append(result, fmt.Errorf("%s: source %s", n.URL, report.SkipReason))
		default:
			fmt.Fprintf(w, "%s\t%s\tsucceeded=%d failed=%d\n", n.URL, report.Encoder, report.Succeeded(), report.Failed())
			for _, o := range report.Outcomes {
				status := "ok"
				if !o.Succeeded() {
					status = o.Reason()
				}
				fmt.Fprintf(w, "  %s\t%s/%s\t%dx%d\t%s\n", o.Variant, o.Container, o.ObjectName, o.Width, o.Height, status)
			}
			if err := report.Err(); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", n.URL, err))
			}
		}
	}
	return result.ErrorOrNil()
}

func handleWithTimeout(ctx context.Context, h pubsub.NotificationHandler, n imageconv.Notification, timeout time.Duration) (imageconv.Report, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h.Handle(ctx, n)
}
