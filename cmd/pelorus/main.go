package main

import (
	"fmt"
	"os"

	"github.com/fleetline/pelorus/common/environment"
	"github.com/fleetline/pelorus/common/version"
	"github.com/fleetline/pelorus/internal/pelorus/app"
	"github.com/fleetline/pelorus/internal/pelorus/delivery"
	"github.com/fleetline/pelorus/internal/pelorus/fleetdata"
	"github.com/fleetline/pelorus/internal/pelorus/matrix"
	"github.com/fleetline/pelorus/internal/pelorus/nlp"
	"github.com/fleetline/pelorus/internal/pelorus/observability"
	"github.com/fleetline/pelorus/internal/pelorus/ratelimit"
	"github.com/fleetline/pelorus/internal/pelorus/session"
)

func main() {
	fmt.Printf("Pelorus vessel-data chatbot\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"),
	)

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pelorus, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Pelorus: %v\n", err)
		os.Exit(1)
	}
	defer pelorus.Stop()

	if err := pelorus.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Pelorus: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() (app.Config, error) {
	fleetBase, err := environment.RequiredString("FLEETDATA_BASE_URL")
	if err != nil {
		return app.Config{}, err
	}

	return app.Config{
		HTTPAddr:     environment.StringOr("HTTP_ADDR", ":8080"),
		DatabasePath: environment.StringOr("DATABASE_PATH", "./pelorus.db"),
		CatalogPath:  environment.StringOr("VESSEL_CATALOG_PATH", ""),

		FleetData: fleetdata.Config{
			BaseURL: fleetBase,
			APIKey:  environment.StringOr("FLEETDATA_API_KEY", ""),
			Timeout: environment.DurationOr("FLEETDATA_TIMEOUT", 0),
		},
		NLP: nlp.Config{
			APIKey:  environment.StringOr("NLP_API_KEY", ""),
			BaseURL: environment.StringOr("NLP_ENDPOINT", ""),
			Model:   environment.StringOr("NLP_MODEL", ""),
		},
		Push: delivery.PushConfig{
			Endpoint: environment.StringOr("PUSH_ENDPOINT", ""),
			APIKey:   environment.StringOr("PUSH_API_KEY", ""),
		},

		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:      environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken: environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
		},
		OpsRoomID: environment.StringOr("MATRIX_OPS_ROOM", ""),

		RateLimit:     environment.IntOr("RATE_LIMIT", ratelimit.DefaultLimit),
		RateWindow:    environment.DurationOr("RATE_WINDOW", ratelimit.DefaultWindow),
		SessionTTL:    environment.DurationOr("SESSION_TTL", 0),
		SweepInterval: environment.DurationOr("SESSION_SWEEP_INTERVAL", session.DefaultSweepInterval),
	}, nil
}
