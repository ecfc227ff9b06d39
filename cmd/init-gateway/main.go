package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai_gateway/internal/auth"
	"ai_gateway/internal/business"
	"ai_gateway/internal/config"
	"ai_gateway/internal/providers"
	"ai_gateway/internal/storage"
)

func main() {
	fmt.Println("AI Gateway - Bootstrap")
	fmt.Println(strings.Repeat("=", 48))

	// Load configuration (primarily for database connection)
	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load configuration: %v", err)
	}

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		fail("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("Applying schema...")
	if err := db.Migrate(ctx); err != nil {
		fail("Failed to migrate: %v", err)
	}

	if path := os.Getenv("GATEWAY_SEED_FILE"); path != "" {
		seedProviders(ctx, cfg, db, path)
	} else {
		fmt.Println("GATEWAY_SEED_FILE not set, skipping provider catalog")
	}

	if cfg.Business.Source == "database" {
		importContexts(ctx, cfg, db)
	}

	if subject := os.Getenv("BOOTSTRAP_TOKEN_SUBJECT"); subject != "" {
		issueToken(cfg, subject, os.Getenv("BOOTSTRAP_TOKEN_ROLES"))
	}

	fmt.Println("\nBootstrap complete")
}

func seedProviders(ctx context.Context, cfg *config.Config, db *storage.DB, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fail("Failed to read seed file: %v", err)
	}
	seed, err := storage.ParseSeed(data)
	if err != nil {
		fail("%v", err)
	}

	var enc *storage.Encryption
	if cfg.EncryptionKey != "" {
		if enc, err = storage.NewEncryptionFromSecret(cfg.EncryptionKey); err != nil {
			fail("Failed to initialize encryption: %v", err)
		}
	}

	// Without an encryption key, credentials stay in the environment only.
	envVarFor := providers.EnvVarFor
	if enc == nil {
		envVarFor = nil
		fmt.Println("ENCRYPTION_KEY not set, provider keys will not be stored")
	}

	result, err := storage.ApplySeed(ctx, db.NewProviderRepository(enc), db.NewModelRepository(), seed, os.Getenv, envVarFor)
	if err != nil {
		fail("Failed to apply seed: %v", err)
	}
	fmt.Printf("Seeded %d provider(s) and %d model(s)\n", result.Providers, result.Models)
	for _, id := range result.Credentials {
		fmt.Printf("  - stored credential for %s (from %s)\n", id, providers.EnvVarFor(id))
	}
}

// importContexts copies every <device>.yaml from the context directory into the database
func importContexts(ctx context.Context, cfg *config.Config, db *storage.DB) {
	files, err := filepath.Glob(filepath.Join(cfg.Business.Dir, "*.yaml"))
	if err != nil {
		fail("Failed to list business contexts: %v", err)
	}
	if len(files) == 0 {
		fmt.Printf("No business contexts found in %s\n", cfg.Business.Dir)
		return
	}

	repo := db.NewBusinessContextRepository(cfg.Cost.DefaultAlertThreshold)
	imported := 0
	for _, f := range files {
		deviceID := strings.TrimSuffix(filepath.Base(f), ".yaml")
		data, err := os.ReadFile(f)
		if err != nil {
			fail("Failed to read %s: %v", f, err)
		}
		bctx, err := business.Parse(data, deviceID, cfg.Cost.DefaultAlertThreshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN: skipping %s: %v\n", f, err)
			continue
		}
		if err := repo.Save(ctx, bctx); err != nil {
			fail("Failed to save context for %s: %v", deviceID, err)
		}
		imported++
	}
	fmt.Printf("Imported %d business context(s)\n", imported)
}

func issueToken(cfg *config.Config, subject, roleList string) {
	var roles []auth.Role
	for _, r := range strings.Split(roleList, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, auth.Role(r))
		}
	}
	if len(roles) == 0 {
		roles = []auth.Role{auth.RoleAdmin}
	}

	token, exp, err := auth.IssueToken(cfg.JWTSecret, subject, roles, auth.DefaultTokenTTL, time.Now())
	if err != nil {
		fail("Failed to issue token: %v", err)
	}
	fmt.Printf("\nOperator token for %s (roles %v, expires %s):\n%s\n", subject, roles, exp.Format(time.RFC3339), token)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	os.Exit(1)
}
