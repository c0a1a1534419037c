package handler

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"discord-ollama/internal/integrations/discord"
	"discord-ollama/internal/render"
	"discord-ollama/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"

	replyGatewayOnly = "This command is only available while the bot is online."
)

// Pager moves the page of a stored message.
type Pager interface {
	Navigate(ctx context.Context, messageID string, dir render.Direction) (render.View, bool, error)
}

// Handler serves Discord's HTTP interactions endpoint: it answers PING and
// page buttons, everything else needs the gateway bot.
type Handler struct {
	pager     Pager
	publicKey ed25519.PublicKey
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(pager Pager, publicKey ed25519.PublicKey) (*Handler, error) {
	if pager == nil {
		return nil, errors.New("handler: pager must not be nil")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, errors.New("handler: invalid discord public key")
	}
	return &Handler{pager: pager, publicKey: publicKey}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlation_id", correlationID)

	body := event.Body
	if event.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: "invalid_body"}), nil
		}
		body = string(raw)
	}

	if !h.verify(ctx, event, body) {
		log.Warn("rejected interaction with bad signature")
		return jsonResponse(http.StatusUnauthorized, correlationID, errorResponse{Error: "invalid_signature"}), nil
	}

	var interaction discordgo.Interaction
	if err := json.Unmarshal([]byte(body), &interaction); err != nil {
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: "invalid_body"}), nil
	}

	switch interaction.Type {
	case discordgo.InteractionPing:
		return jsonResponse(http.StatusOK, correlationID, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}), nil
	case discordgo.InteractionMessageComponent:
		return jsonResponse(http.StatusOK, correlationID, h.page(ctx, log, &interaction)), nil
	default:
		return jsonResponse(http.StatusOK, correlationID, discord.Ephemeral(replyGatewayOnly)), nil
	}
}

func (h *Handler) page(ctx context.Context, log *slog.Logger, i *discordgo.Interaction) *discordgo.InteractionResponse {
	dir, ok := render.ParseDirection(i.MessageComponentData().CustomID)
	if !ok || i.Message == nil {
		return discord.Ephemeral(replyGatewayOnly)
	}
	view, _, err := h.pager.Navigate(ctx, i.Message.ID, dir)
	if err != nil {
		log.Warn("page navigation failed", "message", i.Message.ID, "code", usecase.CodeOf(err), "err", err)
		return discord.Ephemeral(discord.ErrorText(err))
	}
	return discord.PageUpdate(view)
}

// verify checks Discord's ed25519 request signature.
func (h *Handler) verify(ctx context.Context, event events.APIGatewayProxyRequest, body string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		return false
	}
	for k, v := range event.Headers {
		req.Header.Set(k, v)
	}
	return discordgo.VerifyInteraction(req, h.publicKey)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}
