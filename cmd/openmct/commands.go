package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
	"github.com/dedurus/openmct/internal/export"
	"github.com/dedurus/openmct/internal/telemetry"
)

var (
	matchPattern string

	exportOutput string

	watchInterval time.Duration
	watchParams   []string
	watchCount    int
)

func init() {
	objectsCmd.Flags().StringVarP(&matchPattern, "match", "m", "", "only list identifiers matching a wildcard pattern")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "directory to write to, or - for stdout (default EXPORT_DIR)")

	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Second, "poll interval, 0 for a single request")
	watchCmd.Flags().StringSliceVarP(&watchParams, "param", "p", nil, "request parameter as key=value (repeatable)")
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "stop after this many updates (0 runs until interrupted)")
}

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List catalog objects",
	Example: `  # List every generator
  openmct objects --match 'sine-*'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, reg, err := loadCatalog()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNAME\tCAPABILITIES")
		for _, obj := range reg.Match(matchPattern) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", obj.ID(), obj.Type(), obj.Name(), strings.Join(obj.Capabilities(), ","))
		}
		return tw.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export an object and everything it contains as JSON",
	Example: `  # Write "My Items.json" into ./exports
  openmct export mine -o ./exports

  # Print the document
  openmct export mine -o -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, reg, err := loadCatalog()
		if err != nil {
			return err
		}
		obj, err := reg.Lookup(args[0])
		if err != nil {
			return err
		}
		actx := export.ActionContext{DomainObject: obj}
		if !export.AppliesTo(actx) {
			return errors.CapabilityMissing("export", obj.ID(), domain.CapabilityCreation)
		}

		dir := exportOutput
		if dir == "" {
			dir = cfg.ExportDir
		}
		if dir == "-" {
			return export.NewAction(actx, export.WriterService{W: cmd.OutOrStdout()}).Run(cmd.Context())
		}

		service := export.FileService{Dir: dir}
		if err := export.NewAction(actx, service).Run(cmd.Context()); err != nil {
			return err
		}
		path, _ := service.Path(export.Filename(obj))
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", obj.ID(), path)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Poll an object's telemetry and print each update",
	Example: `  # Follow the demo sine panel
  openmct watch sine-panel -p mode=latest`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, reg, err := loadCatalog()
		if err != nil {
			return err
		}
		obj, err := reg.Lookup(args[0])
		if err != nil {
			return err
		}
		req, err := parseParams(watchParams)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, obj, req, watchInterval, watchCount, json.NewEncoder(cmd.OutOrStdout()))
	},
}

// watch drives a controller for obj and encodes a snapshot list for every
// telemetryUpdate until ctx is done or count updates were written.
func watch(ctx context.Context, obj *domain.Object, req domain.Request, interval time.Duration, count int, enc *json.Encoder) error {
	updates := make(chan struct{}, 1)
	ctrl := telemetry.New(telemetry.Options{
		Scope: telemetry.ScopeFunc(func(string) {
			select {
			case updates <- struct{}{}:
			default:
			}
		}),
		PollInterval: interval,
	})
	defer ctrl.Close()

	ctrl.Represent(ctx, obj)
	if len(ctrl.TelemetryObjects()) == 0 {
		return errors.CapabilityMissing("watch", obj.ID(), domain.CapabilityTelemetry)
	}
	done := ctrl.RequestData(ctx, req)

	written := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			if err := enc.Encode(ctrl.Snapshots()); err != nil {
				return err
			}
			written++
			if count > 0 && written >= count {
				return nil
			}
			if interval <= 0 && !ctrl.IsRequestPending() {
				<-done
				return nil
			}
		}
	}
}

func parseParams(params []string) (domain.Request, error) {
	req := make(domain.Request, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: parameter %q is not key=value", errors.ErrInvalidInput, p)
		}
		req[key] = domain.ParseRequestValue(strings.TrimSpace(value))
	}
	return req, nil
}
