// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// Connect creates a client for homeserverURL and verifies the access token
// belongs to userID.
func Connect(ctx context.Context, homeserverURL string, userID id.UserID, accessToken string) (*mautrix.Client, error) {
	client, err := mautrix.NewClient(homeserverURL, userID, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	whoami, err := client.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Matrix token: %w", err)
	}
	if whoami.UserID != userID {
		return nil, fmt.Errorf("access token belongs to %s, not %s", whoami.UserID, userID)
	}
	return client, nil
}
