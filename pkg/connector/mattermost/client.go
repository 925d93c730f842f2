// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
)

// Connect creates an API client for serverURL and verifies the token. It
// returns the authenticated user so its id can feed echo prevention.
func Connect(ctx context.Context, serverURL, token string) (*model.Client4, *model.User, error) {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)

	me, _, err := client.GetMe(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify Mattermost token: %w", err)
	}
	return client, me, nil
}
