// Command bootstrap-admin seeds or updates an administrator account in the
// datastore. The API only lets administrators create accounts, so a fresh
// installation needs this tool once to create the first one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dosepics/internal/models"
	"dosepics/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		username    string
		name        string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the admin account")
	flag.StringVar(&name, "name", "Administrator", "Display name for the admin account")
	flag.StringVar(&password, "password", "", "Password for the admin account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := openRepository(ctx, jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	user, created, err := bootstrapAdmin(ctx, repo, username, strings.TrimSpace(name), password)
	if err != nil {
		fatalf("bootstrap admin: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Admin user %s (%s) %s successfully.\n", user.Username, user.Name, state)
	fmt.Println("Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(ctx context.Context, jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewStorage(jsonPath)
	}
	return storage.NewPostgresRepository(ctx, postgresDSN)
}

func closeRepository(repo storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = repo.Close(ctx)
}

func bootstrapAdmin(ctx context.Context, repo storage.Repository, username, name, password string) (models.User, bool, error) {
	normalized, err := storage.NormalizeUsername(username)
	if err != nil {
		return models.User{}, false, err
	}

	existing, err := repo.GetUser(ctx, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		user, err := repo.CreateUser(ctx, storage.CreateUserParams{
			Username: normalized,
			Name:     name,
			Password: password,
			Admin:    true,
		})
		if err != nil {
			return models.User{}, false, err
		}
		return user, true, nil
	} else if err != nil {
		return models.User{}, false, err
	}

	admin := true
	update := storage.UserUpdate{Password: &password, Admin: &admin}
	if name != "" && name != existing.Name {
		update.Name = &name
	}
	updated, err := repo.UpdateUser(ctx, normalized, update)
	if err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}
