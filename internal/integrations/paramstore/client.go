// Package paramstore reads bot secrets from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter names below a prefix such as /discord-ollama.
const (
	tokenParameter     = "/discord-token"
	publicKeyParameter = "/discord-public-key"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter returns the decrypted value of one parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// secretPayload is the JSON shape a secret may be stored in. Plain string
// values are accepted as well.
type secretPayload struct {
	Token string `json:"token"`
	Value string `json:"value"`
}

// DiscordToken resolves the bot token stored at prefix + "/discord-token".
func DiscordToken(ctx context.Context, getter Getter, prefix string) (string, error) {
	return secret(ctx, getter, prefix+tokenParameter)
}

// DiscordPublicKey resolves the hex application public key stored at
// prefix + "/discord-public-key".
func DiscordPublicKey(ctx context.Context, getter Getter, prefix string) (string, error) {
	return secret(ctx, getter, prefix+publicKeyParameter)
}

func secret(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore: getter must not be nil")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var p secretPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return "", fmt.Errorf("paramstore: unmarshal %s as JSON: %w", name, err)
		}
		raw = p.Token
		if raw == "" {
			raw = p.Value
		}
	}
	if raw == "" {
		return "", fmt.Errorf("paramstore: secret %s is empty", name)
	}
	return raw, nil
}
