package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"dosepics/internal/models"
)

// Snapshot is a point-in-time export of the JSON datastore, used to move an
// installation onto Postgres. Password hashes and picture identifiers are
// carried over verbatim so accounts and links keep working after the move.
type Snapshot struct {
	Users []models.User
	Pics  []models.Picture
}

// Counts summarises a snapshot for migration verification.
type Counts struct {
	Users int
	Pics  int
}

func (s Snapshot) Counts() Counts {
	return Counts{Users: len(s.Users), Pics: len(s.Pics)}
}

// LoadSnapshot reads a JSON datastore file into a Snapshot without going
// through the Repository interface, preserving stored password hashes.
func LoadSnapshot(path string) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var data dataset
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("decode store file: %w", err)
	}

	snap := Snapshot{
		Users: make([]models.User, 0, len(data.Users)),
		Pics:  make([]models.Picture, 0, len(data.Pics)),
	}
	for _, user := range data.Users {
		snap.Users = append(snap.Users, user)
	}
	for _, pic := range data.Pics {
		snap.Pics = append(snap.Pics, pic)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Username < snap.Users[j].Username })
	sort.Slice(snap.Pics, func(i, j int) bool { return snap.Pics[i].ID < snap.Pics[j].ID })
	return snap, nil
}

// ImportSnapshot writes a snapshot into Postgres inside one transaction.
// Users are inserted before pictures so owner references resolve, and the id
// sequence is advanced past the highest imported picture id. Existing rows
// with the same keys cause the import to fail rather than be overwritten.
func ImportSnapshot(ctx context.Context, pool *pgxpool.Pool, snap Snapshot) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, user := range snap.Users {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (username, name, password_hash, admin) VALUES ($1, $2, $3, $4)`,
			user.Username, user.Name, user.PasswordHash, user.Admin,
		)
		if err != nil {
			return fmt.Errorf("import user %s: %w", user.Username, err)
		}
	}

	var maxID int64
	for _, pic := range snap.Pics {
		_, err := tx.Exec(ctx,
			`INSERT INTO pics (id, owner, info, filename) VALUES ($1, $2, $3, $4)`,
			pic.ID, pic.Owner, pic.Info, pic.Filename,
		)
		if err != nil {
			return fmt.Errorf("import pic %d: %w", pic.ID, err)
		}
		if pic.ID > maxID {
			maxID = pic.ID
		}
	}
	if maxID > 0 {
		if _, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('pics', 'id'), $1)`, maxID); err != nil {
			return fmt.Errorf("advance pics sequence: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
