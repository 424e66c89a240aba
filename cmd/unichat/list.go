package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lrhodin/unichat/pkg/engine"
	"github.com/lrhodin/unichat/pkg/store"
)

var listCommand = &cli.Command{
	Name:   "list",
	Usage:  "Print the unified conversation list",
	Before: prepareApp,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "Only show conversations matching this name/address substring",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output the raw snapshot as JSON",
		},
	},
	Action: runList,
}

func runList(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	log := getLogger(ctx)

	st, err := store.Open(ctx.Context, cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := engine.New(ctx.Context, cfg, st, nil, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.LoadInitial(ctx.Context); err != nil {
		return err
	}
	if filter := ctx.String("filter"); filter != "" {
		if err := eng.Refresh(ctx.Context, filter); err != nil {
			return err
		}
	}

	snap := eng.List()
	if snap.LastError != "" {
		return fmt.Errorf("list load failed: %s", snap.LastError)
	}
	if ctx.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printChats(snap)
	return nil
}

func printChats(snap *engine.ListSnapshot) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPREVIEW\tWHEN\tUNREAD\tFLAGS")
	for _, chat := range snap.Chats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			chat.DisplayName,
			truncate(chat.Preview, 48),
			formatWhen(chat.TimestampMS),
			formatUnread(chat.UnreadCount),
			formatFlags(chat))
	}
	w.Flush()
	if snap.HasMore {
		fmt.Printf("... and more (%d shown)\n", len(snap.Chats))
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func formatWhen(ms int64) string {
	if ms == 0 {
		return "-"
	}
	ts := time.UnixMilli(ms)
	if time.Since(ts) < 24*time.Hour {
		return ts.Format("15:04")
	}
	return ts.Format("Jan 2")
}

func formatUnread(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

func formatFlags(chat engine.ChatPreview) string {
	var flags []byte
	if chat.Pinned {
		flags = append(flags, 'P')
	}
	if chat.Muted {
		flags = append(flags, 'M')
	}
	if chat.Merged {
		flags = append(flags, '+')
	}
	if chat.Typing {
		flags = append(flags, 'T')
	}
	return string(flags)
}
