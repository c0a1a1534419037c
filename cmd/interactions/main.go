package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"discord-ollama/handler"
	"discord-ollama/internal/config"
	"discord-ollama/internal/integrations/paramstore"
	"discord-ollama/internal/repository"
	"discord-ollama/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	settings, err := config.Load(os.Getenv("BOT_CONFIG"), os.Getenv)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	stateTable := required("STATE_TABLE", settings.StateTable)
	publicKeyHex := settings.DiscordPublicKey

	// ---- AWS SDK config ----
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	if publicKeyHex == "" {
		paramPrefix := required("PARAM_PREFIX", settings.ParamPrefix)
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		publicKeyHex, err = paramstore.DiscordPublicKey(ctx, ssmClient, paramPrefix)
		if err != nil {
			slog.Error("failed to read discord public key", "err", err)
			os.Exit(1)
		}
	}
	publicKey, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		slog.Error("discord public key is not hex", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	pages, err := usecase.NewStoredPageService(stateClient)
	if err != nil {
		slog.Error("failed to create page service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(pages, ed25519.PublicKey(publicKey))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func required(key, v string) string {
	if v == "" {
		slog.Error("required setting is not set", "key", key)
		os.Exit(1)
	}
	return v
}
