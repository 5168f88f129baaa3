package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/agent"
	"github.com/sells-group/mapchat/internal/area"
	"github.com/sells-group/mapchat/internal/chat"
	"github.com/sells-group/mapchat/internal/layers"
	"github.com/sells-group/mapchat/internal/parcel"
	"github.com/sells-group/mapchat/internal/resilience"
	"github.com/sells-group/mapchat/pkg/nycopen"
)

var (
	askChatID string
	askUserID string
	askLayers bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Run one agent turn against a chat",
	Long: `Sends a prompt through Claude with the map tools, appends the
resulting assistant message to the chat, and prints it. With --layers the
derived layer state for the chat is printed as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic.key is not configured")
		}

		store, pool, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if pool != nil {
			defer pool.Close()
		}

		chatID := askChatID
		if chatID == "" {
			chatID = uuid.NewString()
			if err := store.CreateChat(ctx, chat.Chat{
				ID:         chatID,
				UserID:     askUserID,
				Visibility: chat.VisibilityPrivate,
			}); err != nil {
				return err
			}
			zap.L().Info("created chat", zap.String("chat_id", chatID))
		}

		open := nycopen.NewClient(cfg.OpenData.AppToken,
			nycopen.WithBaseURL(cfg.OpenData.BaseURL),
			nycopen.WithTimeout(time.Duration(cfg.OpenData.TimeoutSecs)*time.Second),
			nycopen.WithPageLimit(cfg.OpenData.PageLimit),
			nycopen.WithRateLimit(cfg.OpenData.RequestsPerSec),
			nycopen.WithRetryConfig(resilience.FromRetryConfig(
				cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs,
				cfg.Retry.Multiplier, cfg.Retry.JitterFraction)),
			nycopen.WithCircuit(resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
				cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))),
		)

		var engine *parcel.Engine
		if pool != nil {
			engine = parcel.NewEngine(pool)
		}

		a := agent.New(
			agent.NewLLM(cfg.Anthropic.Key),
			agent.NewTools(open, area.NewRegistry(store), engine),
			store,
			cfg.Anthropic.Model,
			int64(cfg.Anthropic.MaxTokens),
		)

		msg, err := a.Run(ctx, chatID, askUserID, strings.Join(args, " "))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(msg); err != nil {
			return eris.Wrap(err, "ask: encode message")
		}

		if askLayers {
			msgs, err := store.ListMessages(ctx, chatID)
			if err != nil {
				return err
			}
			sync := layers.NewSynchronizer()
			sync.Update(msgs)
			if err := enc.Encode(sync.Snapshot()); err != nil {
				return eris.Wrap(err, "ask: encode layers")
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askChatID, "chat", "", "existing chat id (default: create a new chat)")
	askCmd.Flags().StringVar(&askUserID, "user", "local", "principal user id")
	askCmd.Flags().BoolVar(&askLayers, "layers", false, "print derived layer state after the turn")
	rootCmd.AddCommand(askCmd)
}
