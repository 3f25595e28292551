package agorat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agora-at/agorat/pkg/agora"
	"github.com/agora-at/agorat/pkg/atproto"
	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/config"
	"github.com/agora-at/agorat/pkg/identity"
	"github.com/agora-at/agorat/pkg/keys"
	"github.com/agora-at/agorat/pkg/protocol"
	"github.com/agora-at/agorat/pkg/store"
)

const keyFileName = "agorat.pem"

// app bundles everything a command needs after wiring.
type app struct {
	cfg     *config.Config
	bridge  *bridge.Bridge
	atproto *atproto.Adapter
	store   *store.Store
	logger  *slog.Logger
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return cfg, nil
}

// buildApp wires the store, the two side adapters, the registry and the
// bridge from configuration. The atproto session is restored from the
// store when present, refreshed when stale, and established with a
// fresh login when an identifier and password are configured.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.New(cfg.Store.DSN, os.Getenv(cfg.Store.MasterKeyEnv))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	agoraAgent, err := agentFor(cfg, "agora", identity.Spec{
		DID:          "did:web:agora.local",
		Handle:       "agora.local",
		Capabilities: []identity.Capability{identity.CapReadPublic},
		Endpoint:     cfg.Agora.Endpoint,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	atHandle := cfg.ATProto.Identifier
	if atHandle == "" {
		atHandle = "agorat.invalid"
	}
	atAgent, err := agentFor(cfg, "atproto", identity.Spec{
		DID:          "did:web:" + atHandle,
		Handle:       atHandle,
		Capabilities: []identity.Capability{identity.CapReadPublic, identity.CapWritePosts},
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	agoraClient := agora.NewClient(cfg.Agora.Endpoint, nil)
	agoraAdapter, err := agora.NewAdapter(agoraAgent, agoraClient, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	var signer keys.Signer
	if kp, err := keys.Load(filepath.Join(cfg.Keys.Dir, keyFileName)); err == nil {
		signer = kp
	}

	atAdapter, err := atproto.NewAdapter(ctx, atproto.AdapterConfig{
		Agent:     atAgent,
		Transport: atproto.NewClient(cfg.ATProto.Service, nil),
		Store:     st,
		Signer:    signer,
		Logger:    logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	if atAdapter.Session() != nil {
		if !atAdapter.Refresh(ctx) {
			logger.Warn("stored atproto session could not be refreshed")
		}
	}
	if atAdapter.Session() == nil && cfg.ATProto.Identifier != "" {
		password := os.Getenv(cfg.ATProto.PasswordEnv)
		if password == "" {
			logger.Warn("atproto password env not set; running unauthenticated",
				slog.String("env", cfg.ATProto.PasswordEnv))
		} else if _, err := atAdapter.Login(ctx, cfg.ATProto.Identifier, password); err != nil {
			st.Close()
			return nil, fmt.Errorf("atproto login: %w", err)
		}
	}

	registry := protocol.NewRegistry(agoraAgent.DID(), st, logger)
	if err := registry.Load(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("loading protocol registry: %w", err)
	}

	b, err := bridge.New(bridge.Config{
		Agora:      agoraAdapter,
		ATProto:    atAdapter,
		Negotiator: agoraAdapter,
		Registry:   registry,
		Logger:     logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	subscribeEventLogs(b, logger)

	return &app{
		cfg:     cfg,
		bridge:  b,
		atproto: atAdapter,
		store:   st,
		logger:  logger,
	}, nil
}

func agentFor(cfg *config.Config, role string, fallback identity.Spec) (*identity.Agent, error) {
	if _, ok := cfg.Agents[role]; ok {
		return cfg.Agent(role)
	}
	return identity.NewAgent(fallback)
}

func subscribeEventLogs(b *bridge.Bridge, logger *slog.Logger) {
	b.On(bridge.EventMessage, func(ev bridge.Event) {
		logger.Info("bridge message",
			slog.String("direction", string(ev.Direction)),
			slog.String("message_type", ev.MessageType),
		)
	})
	b.On(bridge.EventPost, func(ev bridge.Event) {
		logger.Info("post created")
	})
	b.On(bridge.EventProtocolNegotiated, func(ev bridge.Event) {
		if ev.Protocol != nil {
			logger.Info("protocol negotiated",
				slog.String("message_type", ev.MessageType),
				slog.String("protocol_id", ev.Protocol.ID),
			)
		}
	})
	b.On(bridge.EventError, func(ev bridge.Event) {
		logger.Error("bridge error",
			slog.String("direction", string(ev.Direction)),
			slog.String("err", ev.Err),
		)
	})
}
