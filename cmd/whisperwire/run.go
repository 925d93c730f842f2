// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/unjoinable/whisperwire/pkg/admin"
	"github.com/unjoinable/whisperwire/pkg/config"
	"github.com/unjoinable/whisperwire/pkg/connector/matrix"
	"github.com/unjoinable/whisperwire/pkg/connector/mattermost"
	"github.com/unjoinable/whisperwire/pkg/relay"
)

// platform is one connected chat network: the endpoint that sends into it
// and the listener that feeds the relay from it.
type platform struct {
	name     string
	endpoint interface {
		relay.Endpoint
		relay.DuplexNode
	}
	// listen starts receiving and returns a function that stops it.
	listen func(ctx context.Context, dispatch relay.DispatchFunc) (stop func(), err error)
}

func run(ctx context.Context, log zerolog.Logger, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(reg)

	platforms, err := connectPlatforms(ctx, log, cfg)
	if err != nil {
		return err
	}
	if len(platforms) == 0 {
		log.Warn().Msg("No platforms enabled, nothing will be relayed")
	}

	opts := admin.Options{Addr: cfg.Admin.Addr, Mode: cfg.Relay.Mode, Gatherer: reg}
	var dispatchers []relay.DispatchFunc
	switch cfg.Relay.Mode {
	case config.ModeLink:
		lm := relay.NewLinkManager(log, metrics)
		dispatchers, err = wireLink(lm, cfg.Relay, platforms)
		opts.Links = lm
	default:
		b := relay.NewBridge(log, metrics)
		dispatchers = wireBridge(b, cfg.Relay, platforms)
		if err = b.Start(); err == nil {
			defer func() { _ = b.Stop() }()
		}
		opts.Bridge = b
	}
	if err != nil {
		return err
	}

	var stops []func()
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()
	for i, p := range platforms {
		stop, err := p.listen(ctx, dispatchers[i])
		if err != nil {
			return fmt.Errorf("failed to start %s listener: %w", p.name, err)
		}
		stops = append(stops, stop)
	}

	if cfg.Admin.Addr == "" {
		<-ctx.Done()
		return nil
	}
	return admin.NewServer(log, opts).Run(ctx)
}

// wireBridge registers every platform on b and installs the configured
// filter and transformer chains. All listeners dispatch through the bridge.
func wireBridge(b *relay.Bridge, cfg config.RelayConfig, platforms []platform) []relay.DispatchFunc {
	if cfg.DropBlank {
		b.AddFilter(relay.ByContent(relay.NotBlank))
	}
	if cfg.IgnorePrefix != "" {
		prefix := cfg.IgnorePrefix
		b.AddFilter(relay.ByContent(func(content string) bool {
			return !strings.HasPrefix(content, prefix)
		}))
	}
	b.AddTransformer(relay.TrimContent)
	b.AddTransformer(relay.TruncateContent(cfg.MaxLength))

	dispatchers := make([]relay.DispatchFunc, len(platforms))
	for i, p := range platforms {
		b.RegisterEndpoint(p.endpoint)
		dispatchers[i] = b.RouteMessage
	}
	return dispatchers
}

// wireLink connects the two platforms with one link. Each listener relays
// from its own side.
func wireLink(lm *relay.LinkManager, cfg config.RelayConfig, platforms []platform) ([]relay.DispatchFunc, error) {
	if len(platforms) != 2 {
		return nil, fmt.Errorf("%w: link mode needs exactly two platforms, got %d", config.ErrInvalid, len(platforms))
	}
	a, b := platforms[0].endpoint, platforms[1].endpoint
	if !lm.LinkWith(a, b, linkPredicate(cfg)) {
		return nil, fmt.Errorf("failed to link %s and %s", a.ID(), b.ID())
	}
	return []relay.DispatchFunc{
		func(ctx context.Context, msg relay.Message) *relay.Pending { return lm.Relay(ctx, a, msg) },
		func(ctx context.Context, msg relay.Message) *relay.Pending { return lm.Relay(ctx, b, msg) },
	}, nil
}

func linkPredicate(cfg config.RelayConfig) relay.RelayPredicate {
	pred := relay.AllowAll
	if cfg.DropBlank {
		pred = pred.And(relay.NotBlankContent)
	}
	if cfg.IgnorePrefix != "" {
		prefix := cfg.IgnorePrefix
		pred = pred.And(func(msg relay.Message) bool {
			return !strings.HasPrefix(msg.Content, prefix)
		})
	}
	return pred
}

// connectPlatforms verifies credentials for every enabled platform. All
// failures are reported together.
func connectPlatforms(ctx context.Context, log zerolog.Logger, cfg *config.Config) ([]platform, error) {
	var platforms []platform
	var result *multierror.Error

	if cfg.Mattermost.Enabled {
		p, err := connectMattermost(ctx, log, cfg)
		if err != nil {
			result = multierror.Append(result, err)
		} else {
			platforms = append(platforms, p)
		}
	}
	if cfg.Matrix.Enabled {
		p, err := connectMatrix(ctx, log, cfg)
		if err != nil {
			result = multierror.Append(result, err)
		} else {
			platforms = append(platforms, p)
		}
	}
	return platforms, result.ErrorOrNil()
}

func connectMattermost(ctx context.Context, log zerolog.Logger, cfg *config.Config) (platform, error) {
	mm := cfg.Mattermost
	client, me, err := mattermost.Connect(ctx, mm.ServerURL, mm.Token)
	if err != nil {
		return platform{}, err
	}
	log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Connected to Mattermost")

	endpoint := mattermost.NewEndpoint(log, client, mm.ChannelID, cfg.FormatMessage)
	endpoint.SetOverride(cfg.FormatUsername, mm.IconURL)
	return platform{
		name:     "mattermost",
		endpoint: endpoint,
		listen: func(ctx context.Context, dispatch relay.DispatchFunc) (func(), error) {
			l := mattermost.NewListener(log, mattermost.ListenerConfig{
				ServerURL:  mm.ServerURL,
				Token:      mm.Token,
				ChannelID:  mm.ChannelID,
				SelfUserID: me.Id,
				BotPrefix:  mm.BotPrefix,
				Source:     endpoint.ID(),
			}, dispatch)
			if err := l.Start(ctx); err != nil {
				return nil, err
			}
			return l.Stop, nil
		},
	}, nil
}

func connectMatrix(ctx context.Context, log zerolog.Logger, cfg *config.Config) (platform, error) {
	mx := cfg.Matrix
	userID := id.UserID(mx.UserID)
	roomID := id.RoomID(mx.RoomID)
	client, err := matrix.Connect(ctx, mx.HomeserverURL, userID, mx.AccessToken)
	if err != nil {
		return platform{}, err
	}
	log.Info().Stringer("user_id", userID).Msg("Connected to Matrix")

	endpoint := matrix.NewEndpoint(log, client, roomID, cfg.FormatMessage)
	return platform{
		name:     "matrix",
		endpoint: endpoint,
		listen: func(ctx context.Context, dispatch relay.DispatchFunc) (func(), error) {
			l := matrix.NewListener(log, matrix.ListenerConfig{
				RoomID: roomID,
				UserID: userID,
				Source: endpoint.ID(),
			}, dispatch)
			syncCtx, cancel := context.WithCancel(ctx)
			go func() {
				if err := l.Run(syncCtx, client); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("Matrix sync failed")
				}
			}()
			return cancel, nil
		},
	}, nil
}
