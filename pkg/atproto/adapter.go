package atproto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agora-at/agorat/pkg/bridge"
	"github.com/agora-at/agorat/pkg/identity"
	"github.com/agora-at/agorat/pkg/keys"
	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/store"
)

const postCollection = "app.bsky.feed.post"

// Adapter is the AT Protocol side of the bridge. It owns one immutable
// agent identity and the only mutable session state for that agent.
// Every side-specific operation is capability-gated before any transport
// call and requires an authenticated session.
type Adapter struct {
	agent     *identity.Agent
	transport Transport
	store     *store.Store
	signer    keys.Signer
	logger    *slog.Logger
	session   *Session
}

type AdapterConfig struct {
	Agent     *identity.Agent
	Transport Transport
	// Store, when set, persists the session across restarts.
	Store  *store.Store
	Signer keys.Signer
	Logger *slog.Logger
}

// NewAdapter builds the adapter and restores a persisted session when
// the store holds one for this agent. A session record that fails to
// load is dropped with a warning and the adapter starts
// unauthenticated.
func NewAdapter(ctx context.Context, cfg AdapterConfig) (*Adapter, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("atproto: agent identity is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("atproto: transport is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Adapter{
		agent:     cfg.Agent,
		transport: cfg.Transport,
		store:     cfg.Store,
		signer:    cfg.Signer,
		logger:    cfg.Logger,
	}

	if cfg.Store != nil {
		rec, err := cfg.Store.GetSession(ctx, a.storeKey())
		if err != nil {
			cfg.Logger.Warn("dropping unreadable atproto session record",
				slog.String("agent", a.storeKey()),
				slog.String("err", err.Error()),
			)
			if delErr := cfg.Store.DeleteSession(ctx, a.storeKey()); delErr != nil {
				cfg.Logger.Warn("failed to delete unreadable session record",
					slog.String("err", delErr.Error()),
				)
			}
		}
		if rec != nil {
			a.session = &Session{
				DID:        rec.DID,
				AccessJWT:  rec.AccessJWT,
				RefreshJWT: rec.RefreshJWT,
			}
			cfg.Logger.Info("restored atproto session", slog.String("did", rec.DID))
		}
	}

	return a, nil
}

func (a *Adapter) Agent() *identity.Agent { return a.agent }

func (a *Adapter) Side() bridge.Side { return bridge.SideATProto }

// Session returns a copy of the current session, or nil when
// unauthenticated.
func (a *Adapter) Session() *Session {
	if a.session == nil {
		return nil
	}
	copy := *a.session
	return &copy
}

// Login authenticates against the service and persists the session.
func (a *Adapter) Login(ctx context.Context, identifier, secret string) (Session, error) {
	sess, err := a.transport.CreateSession(ctx, identifier, secret)
	if err != nil {
		return Session{}, err
	}

	a.session = &sess
	a.saveSession(ctx)

	a.logger.Info("atproto login succeeded", slog.String("did", sess.DID))
	return sess, nil
}

// SetSession installs an externally obtained session (for example from a
// prior login on another host) and persists it.
func (a *Adapter) SetSession(ctx context.Context, sess Session) {
	a.session = &sess
	a.saveSession(ctx)
}

// Logout discards the session, in memory and in the store.
func (a *Adapter) Logout(ctx context.Context) {
	a.session = nil
	if a.store != nil {
		if err := a.store.DeleteSession(ctx, a.storeKey()); err != nil {
			a.logger.Warn("failed to delete stored session", slog.String("err", err.Error()))
		}
	}
}

// Refresh exchanges the refresh token for a fresh pair. Failure is an
// expected condition answered with false, not an error: callers drive
// the retry schedule.
func (a *Adapter) Refresh(ctx context.Context) bool {
	if a.session == nil || a.session.RefreshJWT == "" {
		return false
	}

	sess, err := a.transport.RefreshSession(ctx, a.session.RefreshJWT)
	if err != nil {
		a.logger.Warn("atproto session refresh failed", slog.String("err", err.Error()))
		return false
	}

	a.session = &sess
	a.saveSession(ctx)
	return true
}

// CreatePost writes a post record under the session's repo. Facets are
// optional rich-text annotations; pass a null value to omit them.
func (a *Adapter) CreatePost(ctx context.Context, text string, facets payload.Value) (payload.Value, error) {
	if err := a.require(identity.CapWritePosts); err != nil {
		return payload.Value{}, err
	}
	if a.session == nil {
		return payload.Value{}, bridge.ErrNotAuthenticated
	}

	fields := map[string]payload.Value{
		"$type":     payload.String(postCollection),
		"text":      payload.String(text),
		"createdAt": payload.String(time.Now().UTC().Format(time.RFC3339)),
	}
	if !facets.IsNull() {
		fields["facets"] = facets
	}

	return a.transport.CreateRecord(ctx, a.session.AccessJWT, a.session.DID, postCollection, payload.Map(fields))
}

// Feed returns timeline posts. The remote feed response exposes a "feed"
// list; a response without one yields an empty slice.
func (a *Adapter) Feed(ctx context.Context, algorithm string, limit int) ([]payload.Value, error) {
	if err := a.require(identity.CapReadPublic); err != nil {
		return nil, err
	}
	if a.session == nil {
		return nil, bridge.ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = 50
	}

	resp, err := a.transport.GetTimeline(ctx, a.session.AccessJWT, algorithm, limit)
	if err != nil {
		return nil, err
	}

	feed, _ := resp.Get("feed")
	items, _ := feed.AsList()
	return items, nil
}

// Profile fetches an actor's profile record.
func (a *Adapter) Profile(ctx context.Context, actor string) (payload.Value, error) {
	if err := a.require(identity.CapReadPublic); err != nil {
		return payload.Value{}, err
	}
	if a.session == nil {
		return payload.Value{}, bridge.ErrNotAuthenticated
	}

	return a.transport.GetProfile(ctx, a.session.AccessJWT, actor)
}

// SearchPosts queries the search index. The response exposes a "posts"
// list; absence yields an empty slice.
func (a *Adapter) SearchPosts(ctx context.Context, query string, limit int) ([]payload.Value, error) {
	if err := a.require(identity.CapReadPublic); err != nil {
		return nil, err
	}
	if a.session == nil {
		return nil, bridge.ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = 25
	}

	resp, err := a.transport.SearchPosts(ctx, a.session.AccessJWT, query, limit)
	if err != nil {
		return nil, err
	}

	posts, _ := resp.Get("posts")
	items, _ := posts.AsList()
	return items, nil
}

// Dispatch validates the message targets this side and routes on the
// envelope "type" field of the content.
func (a *Adapter) Dispatch(ctx context.Context, msg bridge.Message) (payload.Value, error) {
	if msg.Target != bridge.SideATProto {
		return payload.Value{}, &bridge.ValidationError{
			Reason: fmt.Sprintf("message target %q dispatched to the atproto side", msg.Target),
		}
	}

	switch kind := msg.Content.GetString("type"); kind {
	case "post":
		facets, _ := msg.Content.Get("facets")
		return a.CreatePost(ctx, msg.Content.GetString("text"), facets)

	case "get_feed":
		limit := 50
		if n, ok := msg.Content.GetNumber("limit"); ok {
			limit = int(n)
		}
		items, err := a.Feed(ctx, msg.Content.GetString("algorithm"), limit)
		if err != nil {
			return payload.Value{}, err
		}
		return payload.List(items...), nil

	case "get_profile":
		return a.Profile(ctx, msg.Content.GetString("actor"))

	case "search":
		limit := 25
		if n, ok := msg.Content.GetNumber("limit"); ok {
			limit = int(n)
		}
		items, err := a.SearchPosts(ctx, msg.Content.GetString("query"), limit)
		if err != nil {
			return payload.Value{}, err
		}
		return payload.List(items...), nil

	default:
		return payload.Value{}, &bridge.ValidationError{
			Reason: fmt.Sprintf("unsupported content type %q for the atproto side", kind),
		}
	}
}

// Sign proves control of the agent's signing key. The key material
// stays behind the Signer; the adapter only forwards bytes.
func (a *Adapter) Sign(data []byte) ([]byte, error) {
	if a.signer == nil {
		return nil, fmt.Errorf("atproto: no signing key configured")
	}
	return a.signer.Sign(data)
}

func (a *Adapter) require(cap identity.Capability) error {
	if !a.agent.Has(cap) {
		return &bridge.CapabilityError{DID: a.agent.DID(), Capability: cap}
	}
	return nil
}

func (a *Adapter) storeKey() string {
	return identity.NormalizeDID(a.agent.DID())
}

func (a *Adapter) saveSession(ctx context.Context) {
	if a.store == nil || a.session == nil {
		return
	}
	err := a.store.SaveSession(ctx, &store.SessionRecord{
		AgentID:    a.storeKey(),
		DID:        a.session.DID,
		AccessJWT:  a.session.AccessJWT,
		RefreshJWT: a.session.RefreshJWT,
	})
	if err != nil {
		a.logger.Warn("failed to persist atproto session", slog.String("err", err.Error()))
	}
}
