package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/internal/config"
	"github.com/HerbHall/netsweep/internal/discovery"
	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

// runSweep sweeps the given ranges once against the configured database and
// prints what answered. With no ranges the configured ranges are used.
func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	asJSON := fs.Bool("json", false, "print the sweep and devices as JSON")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: netsweep sweep [-config path] [-json] [CIDR...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	v, logger, db, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mod := discovery.New()
	if err := mod.Init(ctx, plugin.Dependencies{
		Config: config.ForPlugin(v, "discovery"),
		Logger: logger.Named("discovery"),
		Store:  db,
	}); err != nil {
		logger.Error("failed to initialize discovery", zap.Error(err))
		return 1
	}
	if err := mod.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: invalid discovery configuration: %v\n", err)
		return 1
	}

	sw, err := mod.Sweep(ctx, fs.Args())
	if sw == nil {
		fmt.Fprintf(os.Stderr, "netsweep: %v\n", err)
		return 1
	}
	devices, derr := mod.Devices(context.WithoutCancel(ctx))
	if derr != nil {
		fmt.Fprintf(os.Stderr, "netsweep: %v\n", derr)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Sweep   *models.Sweep             `json:"sweep"`
			Devices []models.DiscoveredDevice `json:"devices"`
		}{sw, devices})
	} else {
		printSummary(os.Stdout, sw, devices)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: sweep %s: %v\n", sw.Status, err)
		return 1
	}
	return 0
}

func printSummary(w io.Writer, sw *models.Sweep, devices []models.DiscoveredDevice) {
	fmt.Fprintf(w, "sweep %s %s: %d hosts, %d responded, %d new, %d marked offline\n\n",
		sw.ID, sw.Status, sw.HostsTotal, sw.Responded, sw.Created, sw.Offline)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tHOSTNAME\tTYPE\tVENDOR\tMODEL\tSTATUS")
	for i := range devices {
		d := &devices[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.IP, dash(d.Hostname), d.DeviceType, dash(d.Vendor), dash(d.Model), d.Status)
	}
	_ = tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
