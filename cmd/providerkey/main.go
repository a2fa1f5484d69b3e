// Command providerkey stores a generation provider API key in the
// provider_keys table, where the API reads it when the environment carries
// none.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"edugen/internal/infra"
	"edugen/internal/infra/credentials"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "providerkey:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("providerkey", pflag.ContinueOnError)
	provider := flags.StringP("provider", "p", credentials.ProviderGemini, "provider to configure (gemini or openai)")
	key := flags.StringP("key", "k", "", "API key; defaults to GEMINI_API_KEY or OPENAI_API_KEY")
	show := flags.Bool("show", false, "print the stored key, masked, instead of writing one")
	dbURL := flags.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	if err := flags.Parse(args); err != nil {
		return err
	}

	name := strings.ToLower(strings.TrimSpace(*provider))
	if !credentials.Known(name) {
		return fmt.Errorf("unsupported provider %q", *provider)
	}
	if strings.TrimSpace(*dbURL) == "" {
		return errors.New("--database-url or DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "warn").With().Str("cmd", "providerkey").Str("provider", name).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if *show {
		stored, ok, err := store.Lookup(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("no %s key stored\n", name)
			return nil
		}
		fmt.Printf("%s key: %s (set by %s at %s)\n", name, mask(stored.APIKey), stored.Source, stored.UpdatedAt.Format(time.RFC3339))
		return nil
	}

	value := strings.TrimSpace(*key)
	if value == "" {
		value = strings.TrimSpace(os.Getenv(strings.ToUpper(name) + "_API_KEY"))
	}
	if value == "" {
		return fmt.Errorf("%s API key is required via --key or %s_API_KEY", name, strings.ToUpper(name))
	}
	if err := store.Set(ctx, name, value, "providerkey"); err != nil {
		return err
	}
	fmt.Printf("%s API key stored (%s)\n", name, mask(value))
	return nil
}

func mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
