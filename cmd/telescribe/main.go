package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"telescribe/internal/config"
	"telescribe/internal/export"
	"telescribe/internal/ledger"
	"telescribe/internal/logging"
	"telescribe/internal/metrics"
	"telescribe/internal/model"
	"telescribe/internal/pace"
	"telescribe/internal/resolver"
	"telescribe/internal/tgclient"
	"telescribe/internal/throttle"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "list":
		cmdList()
	case "export":
		cmdExport()
	case "history":
		cmdHistory()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: telescribe <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./telescribe.yaml")
	fmt.Println("  list        List conversations, most recent first")
	fmt.Println("  export      Export conversation history to JSON or Markdown")
	fmt.Println("  history     Show recent export runs")
}

func fatal(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func mustLoad(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	return cfg
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./telescribe.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fatal(err)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
	fmt.Println("Set credentials.token (or TELEGRAM_API_TOKEN) before running export.")
}

// dialogs lists conversations through the message gate so listing obeys the
// same pacing as fetching.
func dialogs(ctx context.Context, client *tgclient.Client, gate *pace.Gate) ([]model.Conversation, error) {
	return throttle.Do(ctx, gate, "list_dialogs", func(ctx context.Context) ([]model.Conversation, error) {
		return client.ListDialogs(ctx)
	})
}

func filterDialogs(convs []model.Conversation, search string) []model.Conversation {
	if search == "" {
		return convs
	}
	needle := strings.ToLower(search)
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}

func cmdList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cfgPath := fs.String("config", "./telescribe.yaml", "config path")
	search := fs.String("search", "", "filter conversations by name substring")
	limit := fs.Int("limit", 30, "number of conversations to display")
	_ = fs.Parse(os.Args[2:])
	cfg := mustLoad(*cfgPath)

	client := tgclient.NewClient(cfg.Credentials.Token)
	gate := pace.NewGate(cfg.Rates.MessagesPerSecond)
	convs, err := dialogs(context.Background(), client, gate)
	if err != nil {
		fatal(err)
	}
	convs = filterDialogs(convs, *search)
	shown := convs
	if len(shown) > *limit {
		shown = shown[:*limit]
	}
	for i, c := range shown {
		fmt.Printf("%3d  %-12d %-8s %-16s %s\n", i+1, c.ID, c.Kind, c.LastActivity.Format("2006-01-02 15:04"), c.Name)
	}
	if len(convs) > *limit {
		fmt.Printf("Showing %d of %d conversations. Use -limit to show more.\n", *limit, len(convs))
	}
}

func cmdExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cfgPath := fs.String("config", "./telescribe.yaml", "config path")
	chat := fs.Int64("chat", 0, "export only this chat id (0 = use -search or all)")
	search := fs.String("search", "", "export chats whose name contains this")
	limit := fs.Int("limit", 0, "max messages per chat (0 = config)")
	format := fs.String("format", "", "json or md (empty = config)")
	noUsernames := fs.Bool("no-usernames", false, "skip sender resolution")
	_ = fs.Parse(os.Args[2:])
	cfg := mustLoad(*cfgPath)
	metrics.StartServer("")

	opts := export.Options{
		Budget:         cfg.Export.Limit,
		ResolveSenders: cfg.Export.ResolveSenders && !*noUsernames,
		Format:         cfg.Export.Format,
		Dir:            cfg.Export.Dir,
	}
	if *limit > 0 {
		opts.Budget = *limit
	}
	if *format != "" {
		opts.Format = *format
	}

	client := tgclient.NewClient(cfg.Credentials.Token)
	msgGate := pace.NewGate(cfg.Rates.MessagesPerSecond)
	userGate := pace.NewGate(cfg.Rates.ResolvesPerSecond)
	pipe := export.NewPipeline(client, resolver.New(client, userGate), msgGate)

	var led *ledger.Ledger
	if cfg.Storage.DBPath != "" {
		var err error
		led, err = ledger.Open(cfg.Storage.DBPath)
		if err != nil {
			fatal(err)
		}
		defer led.Close()
	}

	ctx := context.Background()
	convs, err := dialogs(ctx, client, msgGate)
	if err != nil {
		fatal(err)
	}
	if *chat != 0 {
		picked := convs[:0:0]
		for _, c := range convs {
			if c.ID == *chat {
				picked = append(picked, c)
			}
		}
		if len(picked) == 0 {
			fatal(fmt.Errorf("chat %d not found", *chat))
		}
		convs = picked
	} else {
		convs = filterDialogs(convs, *search)
	}

	// One conversation fully drained before the next begins. The resolver
	// cache is shared across all of them.
	exported, failed := 0, 0
	for _, c := range convs {
		fmt.Printf("Exporting %q (limit %d)\n", c.Name, opts.Budget)
		res, err := export.RunAndWrite(ctx, pipe, led, c, opts)
		if err != nil && res.Messages == 0 {
			failed++
			logging.Error("export_failed", map[string]any{"chat_id": c.ID, "error": err.Error()})
			continue
		}
		exported++
		fmt.Printf("Wrote %s (%d messages)\n", res.File, res.Messages)
	}
	fmt.Printf("Done: %d exported, %d failed\n", exported, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "./telescribe.yaml", "config path")
	n := fs.Int("n", 20, "number of runs to show")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Storage.DBPath == "" {
		fatal(fmt.Errorf("run ledger disabled (storage.dbPath is empty)"))
	}
	led, err := ledger.Open(cfg.Storage.DBPath)
	if err != nil {
		fatal(err)
	}
	defer led.Close()
	runs, err := led.Recent(context.Background(), *n)
	if err != nil {
		fatal(err)
	}
	for _, r := range runs {
		mark := ""
		if r.Partial {
			mark = " (partial)"
		}
		fmt.Printf("%s  %-20s %4d msgs  %s%s\n", r.FinishedAt.Format("2006-01-02 15:04"), r.ChatName, r.Messages, r.File, mark)
	}
}
