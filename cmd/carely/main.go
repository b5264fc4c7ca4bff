package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carelyhq/carely/internal/agent"
	"github.com/carelyhq/carely/internal/alert"
	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/llm"
	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/router"
	"github.com/carelyhq/carely/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "carely",
	Short: "carely - caring companion for elderly users",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single message or REPL mode",
	RunE:  runChat,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Chat REPL with the daily-summary scheduler running in the background",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config, data directory and the first user",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show carely status",
	RunE:  runStatus,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the long-term memory index from stored conversations",
	RunE:  runIndex,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate daily summaries for all users",
	RunE:  runSummarize,
}

var (
	messageFlag string
	userFlag    int64
	nameFlag    string
	dateFlag    string
	limitFlag   int
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().Int64VarP(&userFlag, "user", "u", 0, "User id (defaults to the first user)")
	serveCmd.Flags().Int64VarP(&userFlag, "user", "u", 0, "User id (defaults to the first user)")
	onboardCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Name for the first user")
	indexCmd.Flags().Int64VarP(&userFlag, "user", "u", 0, "User id (defaults to all users)")
	indexCmd.Flags().IntVar(&limitFlag, "limit", 1000, "Max conversations to index per user")
	summarizeCmd.Flags().StringVar(&dateFlag, "date", "", "Day to summarize as YYYY-MM-DD (defaults to today)")
	rootCmd.AddCommand(chatCmd, serveCmd, onboardCmd, statusCmd, indexCmd, summarizeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime bundles everything a command needs once config is loaded.
type runtime struct {
	cfg      *config.Config
	store    *store.Store
	longTerm *memory.LongTermStore
	memory   *memory.Manager
	episodic *memory.EpisodicMemory
	agent    *agent.Agent
}

func (r *runtime) Close() {
	_ = r.store.Close()
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	s, err := store.New(cfg.Memory.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder, err := memory.NewEmbedder(cfg.Memory.Embedding)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	longTerm, err := memory.NewLongTermStore(cfg.Memory.VectorPath, embedder)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("long-term store: %w", err)
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("provider: %w (run 'carely onboard' or set CARELY_API_KEY / ANTHROPIC_API_KEY)", err)
	}

	structured := memory.NewStructuredMemory(s)
	episodic := memory.NewEpisodicMemory(s, client)
	mgr := memory.NewManager(structured, memory.NewShortTermMemory(s, cfg.Memory.ShortTermWindow),
		episodic, longTerm, memory.ManagerOptions{TopK: cfg.Memory.FusionTopK})

	r := router.New(
		&router.MedicationTimingHandler{Store: s},
		router.DateTimeHandler{},
		&router.MedicationIntentHandler{Store: s, Classifier: router.NewClassifier(client)},
		&router.RelativeDayRecapHandler{Episodic: episodic},
		&router.PartialEventHandler{Structured: structured},
		&router.MemoryRecallHandler{Memory: mgr},
	)

	sink, err := buildSink(cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		store:    s,
		longTerm: longTerm,
		memory:   mgr,
		episodic: episodic,
		agent:    agent.New(s, mgr, r, client, sink, agent.Options{}),
	}, nil
}

// buildSink always records alerts in the store; Telegram delivery is
// layered on top when configured.
func buildSink(cfg *config.Config, s *store.Store) (alert.Sink, error) {
	primary := &alert.StoreSink{Store: s}
	if !cfg.Alerts.Telegram.Enabled {
		return primary, nil
	}
	tg, err := alert.NewTelegramSink(cfg.Alerts.Telegram)
	if err != nil {
		return nil, fmt.Errorf("telegram alerts: %w", err)
	}
	return &alert.MultiSink{Primary: primary, Extra: []alert.Sink{tg}}, nil
}

func resolveUser(s *store.Store, id int64) (*store.User, error) {
	if id != 0 {
		u, err := s.GetUser(id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("user %d not found", id)
		}
		return u, nil
	}

	users, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no users yet (run 'carely onboard --name \"...\"')")
	}
	return &users[0], nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	user, err := resolveUser(rt.store, userFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if messageFlag != "" {
		reply := rt.agent.Respond(ctx, user.ID, messageFlag)
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		return nil
	}

	return chatREPL(ctx, rt.agent, user, cmd.InOrStdin(), cmd.OutOrStdout())
}

func chatREPL(ctx context.Context, a *agent.Agent, user *store.User, stdin io.Reader, stdout io.Writer) error {
	fmt.Fprintf(stdout, "carely — chatting as %s (type 'exit' to quit)\n", user.Name)
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply := a.Respond(ctx, user.ID, input)
		fmt.Fprintln(stdout, reply.Text)
	}
	return scanner.Err()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Scheduler.Enabled {
		sched := agent.NewScheduler(rt.store, rt.episodic, rt.longTerm, cfg.Scheduler.DailySummarySpec)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
		fmt.Fprintf(cmd.OutOrStdout(), "daily summaries scheduled at %q\n", cfg.Scheduler.DailySummarySpec)
	}

	user, err := resolveUser(rt.store, userFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return chatREPL(ctx, rt.agent, user, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	if err := os.MkdirAll(config.DataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if nameFlag != "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s, err := store.New(cfg.Memory.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		id, err := s.CreateUser(store.User{Name: nameFlag})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("Created user %d: %s\n", id, nameFlag)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set CARELY_API_KEY / ANTHROPIC_API_KEY")
	fmt.Println("  3. Run 'carely chat -m \"Hello\"' to test")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Database: %s\n", cfg.Memory.DBPath)
	fmt.Printf("Vector index: %s\n", cfg.Memory.VectorPath)
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Embedding: %s (%d dims)\n", cfg.Memory.Embedding.Provider, cfg.Memory.Embedding.Dimension)
	fmt.Printf("Telegram alerts: enabled=%v\n", cfg.Alerts.Telegram.Enabled)

	s, err := store.New(cfg.Memory.DBPath)
	if err != nil {
		fmt.Println("Users: database not available (run 'carely onboard')")
		return nil
	}
	defer s.Close()

	users, err := s.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	fmt.Printf("Users: %d\n", len(users))
	for _, u := range users {
		fmt.Printf("  %d: %s\n", u.ID, u.Name)
	}
	return nil
}

// runIndex replays stored conversations into the vector index. Index ids
// are derived from conversation ids, so re-running is an upsert, not a
// duplicate.
func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	users, err := rt.store.ListUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	ctx := context.Background()
	total := 0
	for _, u := range users {
		if userFlag != 0 && u.ID != userFlag {
			continue
		}
		turns, err := rt.store.AllTurns(u.ID, limitFlag)
		if err != nil {
			return fmt.Errorf("load conversations for user %d: %w", u.ID, err)
		}
		for _, t := range turns {
			if err := rt.longTerm.IndexTurn(ctx, u.ID, t.ID, t.Message, t.Response, t.Timestamp); err != nil {
				return fmt.Errorf("index conversation %d: %w", t.ID, err)
			}
			total++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d conversations\n", total)
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	day := time.Now()
	if dateFlag != "" {
		day, err = time.ParseInLocation("2006-01-02", dateFlag, time.Local)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
	}

	sched := agent.NewScheduler(rt.store, rt.episodic, rt.longTerm, cfg.Scheduler.DailySummarySpec)
	if err := sched.RunDailySummaries(context.Background(), day); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Summaries written for %s\n", day.Format("2006-01-02"))
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}
