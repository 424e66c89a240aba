package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lrhodin/unichat/pkg/engine"
	"github.com/lrhodin/unichat/pkg/store"
)

var watchCommand = &cli.Command{
	Name:   "watch",
	Usage:  "Follow the unified list, reprinting as the database changes",
	Before: prepareApp,
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Snapshot poll interval",
			Value: 500 * time.Millisecond,
		},
	},
	Action: runWatch,
}

func runWatch(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	log := getLogger(ctx)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(runCtx, cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.WatchFile(); err != nil {
		log.Warn().Err(err).Msg("Database file watching unavailable, relying on in-process writes only")
	}

	eng, err := engine.New(runCtx, cfg, st, nil, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.LoadInitial(runCtx); err != nil {
		return err
	}

	var lastVersion uint64
	ticker := time.NewTicker(ctx.Duration("interval"))
	defer ticker.Stop()
	for {
		snap := eng.List()
		if snap.Version != lastVersion {
			lastVersion = snap.Version
			fmt.Printf("\n=== %s (v%d) ===\n", time.Now().Format(time.TimeOnly), snap.Version)
			if snap.LastError != "" {
				fmt.Printf("!! %s\n", snap.LastError)
			}
			printChats(snap)
			printProgress(eng.Progress())
		}
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printProgress(snap *engine.ProgressSnapshot) {
	if snap == nil {
		return
	}
	bar := renderBar(snap.Fraction, 24)
	fmt.Printf("%s [%s] %3.0f%%", snap.Label, bar, snap.Fraction*100)
	if snap.HasError {
		fmt.Print(" (!)")
	}
	fmt.Println()
}

func renderBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	out := make([]byte, width)
	for i := range out {
		if i < filled {
			out[i] = '#'
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}
