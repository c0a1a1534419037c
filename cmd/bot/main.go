package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/bwmarrin/discordgo"

	"discord-ollama/internal/bot"
	"discord-ollama/internal/config"
	"discord-ollama/internal/domain"
	"discord-ollama/internal/integrations/discord"
	"discord-ollama/internal/integrations/ollama"
	"discord-ollama/internal/integrations/paramstore"
	"discord-ollama/internal/repository"
	"discord-ollama/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv("BOT_CONFIG"), os.Getenv)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// ---- Optional AWS clients ----
	var mirror *repository.Client
	if cfg.ParamPrefix != "" || cfg.StateTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		if cfg.Token == "" && cfg.ParamPrefix != "" {
			params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				slog.Error("failed to create SSM client", "err", err)
				os.Exit(1)
			}
			cfg.Token, err = paramstore.DiscordToken(ctx, params, cfg.ParamPrefix)
			if err != nil {
				slog.Error("failed to read discord token", "err", err)
				os.Exit(1)
			}
		}
		if cfg.StateTable != "" {
			mirror, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
			if err != nil {
				slog.Error("failed to create state client", "err", err)
				os.Exit(1)
			}
		}
	}
	if cfg.Token == "" {
		slog.Error("required setting is missing", "key", "TOKEN")
		os.Exit(1)
	}

	// ---- Clients ----
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		slog.Error("failed to create discord session", "err", err)
		os.Exit(1)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	store, err := repository.Open(cfg.CacheFile)
	if err != nil {
		slog.Error("failed to open cache", "path", cfg.CacheFile, "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close cache", "err", err)
		}
	}()

	sink, err := discord.NewSink(dg)
	if err != nil {
		slog.Error("failed to create message sink", "err", err)
		os.Exit(1)
	}
	ollamaClient := ollama.NewClient(ollama.WithBaseURL(cfg.OllamaURL))

	// ---- Services ----
	defaults := usecase.ChatDefaults{
		NumCtx:         cfg.NumCtx,
		Temperature:    cfg.Temperature,
		RequireMention: cfg.RequireMention,
	}
	session := usecase.NewSession(domain.ChatSettings{
		NumCtx:      cfg.NumCtx,
		Temperature: cfg.Temperature,
		KeepAlive:   cfg.KeepAlive,
	})
	library := usecase.NewLibrary()

	responder, err := usecase.NewResponder(ollamaClient, sink, store, session, library, usecase.ResponderConfig{
		CharacterLimit:  cfg.CharacterLimit,
		UpdateFrequency: cfg.UpdateFrequency,
		MinEditInterval: cfg.MinEditInterval.Duration,
	})
	if err != nil {
		slog.Error("failed to create responder", "err", err)
		os.Exit(1)
	}
	var renderMirror usecase.RenderStateMirror
	if mirror != nil {
		renderMirror = mirror
		responder = responder.WithMirror(mirror)
	}

	chat, err := usecase.NewChatService(store, sink, discord.NewAttachmentFetcher(nil), responder, session, defaults)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	commands, err := usecase.NewCommandService(store, ollamaClient, session, defaults)
	if err != nil {
		slog.Error("failed to create command service", "err", err)
		os.Exit(1)
	}
	pages, err := usecase.NewPageService(store, library, renderMirror)
	if err != nil {
		slog.Error("failed to create page service", "err", err)
		os.Exit(1)
	}

	// ---- Gateway ----
	b, err := bot.New(dg, bot.Deps{
		Chat:     chat,
		Commands: commands,
		Pages:    pages,
		Models:   ollamaClient,
		Restore: func(ctx context.Context) (int, error) {
			return usecase.Restore(ctx, store, sink, library)
		},
	})
	if err != nil {
		slog.Error("failed to create bot", "err", err)
		os.Exit(1)
	}
	b.Attach(ctx, dg)

	if err := dg.Open(); err != nil {
		slog.Error("failed to open discord session", "err", err)
		os.Exit(1)
	}
	slog.Info("bot is running", "ollama", cfg.OllamaURL, "cache", cfg.CacheFile)

	<-ctx.Done()
	slog.Info("shutting down")
	session.Cancel()
	if err := dg.Close(); err != nil {
		slog.Warn("failed to close discord session", "err", err)
	}
}
