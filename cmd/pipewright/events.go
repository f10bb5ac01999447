package main

import (
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/internal/config"
	eventsredis "github.com/aescanero/pipewright/pkg/adapters/events/redis"
	"github.com/aescanero/pipewright/pkg/domain"
)

var eventsCmd = &cobra.Command{
	Use:   "events EXECUTION_ID",
	Short: "Print the mirrored events of an execution",
	Long: `Print the events a server mirrored to Redis Streams for one execution,
one JSON object per line. Requires REDIS_ADDR and a server running with
REDIS_MIRROR_EVENTS=true.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

var eventsFollow bool

func init() {
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "keep printing new events until the execution finishes")
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = client.Close() }()

	ctx := cmd.Context()
	mirror := eventsredis.NewStreamsMirror(client, cfg.Redis.KeyPrefix, cfg.Redis.StreamTTL, zap.NewNop())
	enc := json.NewEncoder(cmd.OutOrStdout())
	emit := func(event domain.Event) error {
		return enc.Encode(event.Payload())
	}

	if eventsFollow {
		return mirror.Tail(ctx, args[0], emit)
	}

	history, err := mirror.History(ctx, args[0])
	if err != nil {
		return err
	}
	for _, event := range history {
		if err := emit(event); err != nil {
			return err
		}
	}
	return nil
}
