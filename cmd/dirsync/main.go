// dirsync copies the admin conversation directory to PostgreSQL for reporting.
//
// algorithm:
//  1. build the directory from Firestore (index, or a full rescan with -rescan)
//  2. with -backfill, write the rescanned entries back to the directory index
//  3. upsert every entry into the conversation_directory table
//  4. delete rows of conversations that are no longer in the directory
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/jmoiron/sqlx"
	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/config"
	"github.com/klipach/mentorchat/directory"
	mlog "github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/store"
	_ "github.com/lib/pq"
)

const dbDriver = "postgres"

var schema = `
CREATE TABLE IF NOT EXISTS conversation_directory (
	user_id TEXT NOT NULL,
	counterpart_id TEXT NOT NULL,
	display_name TEXT NOT NULL,
	last_message TEXT NOT NULL,
	last_message_time TIMESTAMPTZ,
	synced_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, counterpart_id)
);`

const upsert = `
INSERT INTO conversation_directory (user_id, counterpart_id, display_name, last_message, last_message_time, synced_at)
VALUES (:user_id, :counterpart_id, :display_name, :last_message, :last_message_time, :synced_at)
ON CONFLICT (user_id, counterpart_id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	last_message = EXCLUDED.last_message,
	last_message_time = EXCLUDED.last_message_time,
	synced_at = EXCLUDED.synced_at`

type row struct {
	UserID          string     `db:"user_id"`
	CounterpartID   string     `db:"counterpart_id"`
	DisplayName     string     `db:"display_name"`
	LastMessage     string     `db:"last_message"`
	LastMessageTime *time.Time `db:"last_message_time"`
	SyncedAt        time.Time  `db:"synced_at"`
}

func main() {
	rescan := flag.Bool("rescan", false, "Rebuild the directory from raw messages instead of the index")
	backfill := flag.Bool("backfill", false, "Write rescanned entries to the directory index (implies -rescan)")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config.Load: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is not set")
	}

	logger := slog.New(mlog.NewCloudLoggingHandler())
	// the tool runs with operator credentials
	ctx := auth.WithRole(context.Background(), auth.Admin("dirsync"))
	ctx = mlog.WithLogger(ctx, logger)

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig)
	if err != nil {
		log.Fatalf("error initializing app: %v", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		log.Fatalf("error getting Firestore client: %v", err)
	}
	defer fsClient.Close()
	st := store.NewFirestore(fsClient)

	mode := directory.Mode(cfg.DirectoryMode)
	if *rescan || *backfill {
		mode = directory.ModeRescan
	}
	builder, err := directory.New(mode, st)
	if err != nil {
		log.Fatalf("directory.New: %v", err)
	}
	entries, err := builder.Build(ctx)
	if err != nil {
		log.Fatalf("error building directory: %v", err)
	}
	logger.Info("directory built", slog.String("mode", string(mode)), slog.Int("entries", len(entries)))

	if *backfill {
		n, err := directory.Backfill(ctx, st, entries)
		if err != nil {
			log.Fatalf("error backfilling directory index: %v", err)
		}
		logger.Info("directory index backfilled", slog.Int("written", n))
	}

	db, err := sqlx.Connect(dbDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("error connecting to the database: %v", err)
	}
	defer db.Close()
	db.MustExec(schema)

	upserted, deleted, err := export(ctx, db, entries, time.Now().UTC())
	if err != nil {
		log.Fatalf("error syncing directory: %v", err)
	}
	logger.Info("directory synced", slog.Int("upserted", upserted), slog.Int64("deleted", deleted))
}

// export replaces the table contents with entries in one transaction.
func export(ctx context.Context, db *sqlx.DB, entries []directory.Entry, now time.Time) (int, int64, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		if _, err := tx.NamedExecContext(ctx, upsert, row{
			UserID:          e.UserID,
			CounterpartID:   e.CounterpartID,
			DisplayName:     e.DisplayName,
			LastMessage:     e.LastMessage,
			LastMessageTime: e.LastMessageTime,
			SyncedAt:        now,
		}); err != nil {
			return 0, 0, fmt.Errorf("upsert %s_%s: %w", e.UserID, e.CounterpartID, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversation_directory WHERE synced_at < $1`, now)
	if err != nil {
		return 0, 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	return len(entries), deleted, tx.Commit()
}
