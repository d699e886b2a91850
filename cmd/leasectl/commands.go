package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leasehub/internal/bootstrap"
	"leasehub/internal/database"
	"leasehub/pkg/config"
	"leasehub/pkg/jwt"
	"leasehub/pkg/logger"
	"leasehub/pkg/queue"

	"github.com/spf13/cobra"
)

func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	if err := logger.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}
	if err := database.Initialize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func teardown() {
	_ = database.Close()
	_ = database.CloseRedis()
}

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the lease tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			defer teardown()

			if err := database.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %v", err)
			}
			fmt.Println("Migration completed.")
			return nil
		},
	}
}

func SweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark active leases past their end date as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := setup()
			if err != nil {
				return err
			}
			defer teardown()

			app, err := bootstrap.Build(cfg, database.GetDB())
			if err != nil {
				return err
			}
			app.Emitter.Start()
			defer app.Emitter.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := app.Sweeper.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %v", err)
			}
			fmt.Printf("Expired %d lease(s) in %d batch(es).\n", result.UpdatedCount, result.Batches)
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 5*time.Minute, "overall timeout for the sweep")
	return cmd
}

func RetryEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-events",
		Short: "Redeliver lease events that previously failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := setup()
			if err != nil {
				return err
			}
			defer teardown()

			app, err := bootstrap.Build(cfg, database.GetDB())
			if err != nil {
				return err
			}

			delivered, err := app.Emitter.RetryFailed(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("retry failed: %v", err)
			}
			fmt.Printf("Redelivered %d event(s).\n", delivered)
			return nil
		},
	}
	cmd.Flags().Int("limit", 100, "maximum number of events to redeliver")
	return cmd
}

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a caller scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetUint("user-id")
			username, _ := cmd.Flags().GetString("username")
			role, _ := cmd.Flags().GetString("role")
			propertyID, _ := cmd.Flags().GetUint("property-id")

			switch role {
			case jwt.RoleAdmin, jwt.RoleManager, jwt.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if role != jwt.RoleAdmin && propertyID == 0 {
				return fmt.Errorf("--property-id is required for role %s", role)
			}

			token, err := jwt.GetJWTManager().GenerateToken(userID, username, role, propertyID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Uint("user-id", 1, "user id claim")
	cmd.Flags().String("username", "admin", "username claim")
	cmd.Flags().String("role", jwt.RoleAdmin, "role: admin, manager or viewer")
	cmd.Flags().Uint("property-id", 0, "property scope for manager/viewer")
	return cmd
}

func EventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Consume lease events from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			follow, _ := cmd.Flags().GetBool("follow")

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			if err := logger.Initialize(cfg); err != nil {
				return fmt.Errorf("failed to initialize logger: %v", err)
			}
			defer database.CloseRedis()

			q := queue.NewRedisEventQueue(database.GetRedis(), cfg.Redis.Prefix, 0)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if follow {
				return followEvents(ctx, q)
			}

			queued, err := q.Len(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Queued: %d\n", queued)

			for i := 0; i < count; i++ {
				msg, err := q.Pop(ctx, time.Second)
				if err != nil {
					return err
				}
				if msg == nil {
					break
				}
				fmt.Printf("%s %s %s\n", time.Unix(msg.PublishedAt, 0).UTC().Format(time.RFC3339), msg.Name, msg.Payload)
			}
			return nil
		},
	}
	cmd.Flags().Int("count", 10, "maximum number of queued events to consume")
	cmd.Flags().Bool("follow", false, "print live events from the broadcast channel until interrupted")
	return cmd
}

func followEvents(ctx context.Context, q *queue.RedisEventQueue) error {
	sub := q.Subscribe(ctx)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe failed: %v", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Println(m.Payload)
		}
	}
}
