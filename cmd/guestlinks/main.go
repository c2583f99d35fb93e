// Command guestlinks administers guest access links from the shell.
//
//	guestlinks issue  --team <id> --by <user> [--ttl-days N]
//	guestlinks list   --team <id>
//	guestlinks revoke <link-id> --by <user>
//	guestlinks stats  <team-id>...
//
// Connection settings come from flags or the same PROMPTSHELF_* environment
// variables the server reads.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/store/accessgrants"
	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/app/system/events"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd(os.Stdout, openMongo).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// settings are the persistent flags shared by every subcommand.
type settings struct {
	mongoURI string
	database string
	baseURL  string
	natsURL  string
	asJSON   bool
	verbose  bool
}

// backend is what a subcommand works against.
type backend struct {
	links *accesslinks.Service
	teams *teamstore.Store
	close func()
}

// opener connects to the backends described by s.
type opener func(ctx context.Context, s settings, logger *zap.Logger) (*backend, error)

func rootCmd(out io.Writer, open opener) *cobra.Command {
	var s settings

	cmd := &cobra.Command{
		Use:           "guestlinks",
		Short:         "Administer PromptShelf guest access links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&s.mongoURI, "mongo-uri", envOr("PROMPTSHELF_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	pf.StringVar(&s.database, "db", envOr("PROMPTSHELF_MONGO_DATABASE", "promptshelf"), "MongoDB database name")
	pf.StringVar(&s.baseURL, "base-url", envOr("PROMPTSHELF_BASE_URL", "http://localhost:3000"), "Public base URL used in generated links")
	pf.StringVar(&s.natsURL, "nats-url", os.Getenv("PROMPTSHELF_NATS_URL"), "NATS URL for link events (blank disables)")
	pf.BoolVar(&s.asJSON, "json", false, "Print JSON instead of a table")
	pf.BoolVarP(&s.verbose, "verbose", "v", false, "Log to stderr")

	// run connects, runs fn, and closes the connection.
	run := func(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error {
		logger := zap.NewNop()
		if s.verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
			defer func() { _ = logger.Sync() }()
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		b, err := open(ctx, s, logger)
		if err != nil {
			return err
		}
		defer b.close()
		return fn(ctx, b)
	}

	cmd.AddCommand(
		issueCmd(out, &s, run),
		listCmd(out, &s, run),
		revokeCmd(out, &s, run),
		statsCmd(out, &s, run),
	)
	return cmd
}

// openMongo connects to MongoDB and, when configured, NATS.
func openMongo(ctx context.Context, s settings, logger *zap.Logger) (*backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.mongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(s.database)

	var pub events.Publisher = events.Nop{}
	closeNATS := func() {}
	if s.natsURL != "" {
		nc, err := events.Connect(s.natsURL, logger)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		pub = events.NewNATSPublisher(nc, events.DefaultSubjectPrefix, logger)
		closeNATS = func() { _ = nc.Drain() }
	}

	return newBackend(db, s, pub, logger, func() {
		closeNATS()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}), nil
}

func newBackend(db *mongo.Database, s settings, pub events.Publisher, logger *zap.Logger, closeFn func()) *backend {
	links := accesslinks.New(accessgrants.New(db), accesslinks.Config{BaseURL: s.baseURL}, clock.Real(), pub, logger)
	return &backend{links: links, teams: teamstore.New(db), close: closeFn}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
