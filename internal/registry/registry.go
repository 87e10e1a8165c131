// Package registry owns the set of router connection profiles and their
// persistence as a single versioned configuration document.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DocumentKey is the ConfigStore key of the router document.
const DocumentKey = "mikrotik"

const maxSaveAttempts = 3

// ErrNotFound is returned by Resolve when no profile matches.
var ErrNotFound = errors.New("router not found")

// Registry loads, resolves and persists device profiles.
type Registry struct {
	store    storage.ConfigStore
	fallback model.DeviceProfile
	newID    func() string
	log      zerolog.Logger
}

// New builds a Registry. fallback is returned as the single entry when no
// document has been stored yet.
func New(store storage.ConfigStore, fallback model.DeviceProfile, log zerolog.Logger) *Registry {
	return &Registry{
		store:    store,
		fallback: fallback,
		newID:    timeBasedID,
		log:      log,
	}
}

// Load returns the stored registry or the built-in default.
func (r *Registry) Load(ctx context.Context) (model.RouterConfig, error) {
	doc, err := r.store.Get(ctx, DocumentKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.RouterConfig{Routers: []model.DeviceProfile{r.fallback}}, nil
		}
		return model.RouterConfig{}, fmt.Errorf("load routers: %w", err)
	}
	var cfg model.RouterConfig
	if err := json.Unmarshal(doc.Value, &cfg); err != nil {
		return model.RouterConfig{}, fmt.Errorf("decode routers: %w", err)
	}
	cfg.Version = doc.Version
	return cfg, nil
}

// Save persists cfg, expecting the stored version to still be cfg.Version.
func (r *Registry) Save(ctx context.Context, cfg model.RouterConfig) (model.RouterConfig, error) {
	if err := validateUnique(cfg.Routers); err != nil {
		return cfg, err
	}
	payload, err := json.Marshal(model.RouterConfig{Routers: cfg.Routers})
	if err != nil {
		return cfg, err
	}
	version, err := r.store.Put(ctx, DocumentKey, payload, cfg.Version)
	if err != nil {
		return cfg, fmt.Errorf("save routers: %w", err)
	}
	cfg.Version = version
	return cfg, nil
}

// Resolve returns the profile with the given id, or the first profile when
// id is empty.
func (r *Registry) Resolve(ctx context.Context, id string) (*model.DeviceProfile, error) {
	cfg, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return find(cfg.Routers, id)
}

// Update merges incoming patches into the stored registry. A concurrent
// writer causes a reload and re-merge; the last writer wins.
func (r *Registry) Update(ctx context.Context, incoming []model.ProfilePatch) (model.RouterConfig, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		cfg, err := r.Load(ctx)
		if err != nil {
			return model.RouterConfig{}, err
		}
		cfg.Routers = Merge(cfg.Routers, incoming, r.newID)
		saved, err := r.Save(ctx, cfg)
		if err == nil {
			r.log.Info().Int("routers", len(saved.Routers)).Uint64("version", saved.Version).Msg("router configuration saved")
			return saved, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return model.RouterConfig{}, err
		}
		r.log.Warn().Err(err).Int("attempt", attempt+1).Msg("router configuration changed concurrently, retrying")
		lastErr = err
	}
	return model.RouterConfig{}, lastErr
}

// Merge applies incoming partial profiles to existing ones, keyed by id.
// Present fields overwrite, except that a secret equal to the mask sentinel
// or empty keeps the existing secret. Unknown ids are appended; a missing id
// is synthesized with newID. The input slice is not modified.
func Merge(existing []model.DeviceProfile, incoming []model.ProfilePatch, newID func() string) []model.DeviceProfile {
	out := make([]model.DeviceProfile, len(existing))
	copy(out, existing)

	for _, patch := range incoming {
		id := ""
		if patch.ID != nil {
			id = strings.TrimSpace(*patch.ID)
		}
		idx := -1
		if id != "" {
			for i := range out {
				if out[i].ID == id {
					idx = i
					break
				}
			}
		}
		if idx >= 0 {
			apply(&out[idx], patch, true)
			continue
		}
		var profile model.DeviceProfile
		apply(&profile, patch, false)
		if id == "" {
			id = newID()
		}
		profile.ID = id
		out = append(out, profile)
	}
	return out
}

// Masked returns a copy of cfg with every non-empty secret replaced.
func Masked(cfg model.RouterConfig) model.RouterConfig {
	out := model.RouterConfig{
		Version: cfg.Version,
		Routers: make([]model.DeviceProfile, len(cfg.Routers)),
	}
	for i, router := range cfg.Routers {
		if router.Password != "" {
			router.Password = model.MaskSentinel
		}
		out.Routers[i] = router
	}
	return out
}

func apply(dst *model.DeviceProfile, patch model.ProfilePatch, keepSecret bool) {
	set := func(target *string, v *string) {
		if v != nil {
			*target = strings.TrimSpace(*v)
		}
	}
	set(&dst.Name, patch.Name)
	set(&dst.Address, patch.Address)
	set(&dst.Username, patch.Username)
	set(&dst.IsolationProfile, patch.IsolationProfile)
	set(&dst.DefaultProfile, patch.DefaultProfile)
	if patch.Port != nil {
		dst.Port = *patch.Port
	}
	if patch.Password != nil {
		secret := *patch.Password
		if keepSecret && (secret == "" || secret == model.MaskSentinel) {
			return
		}
		if secret == model.MaskSentinel {
			secret = ""
		}
		dst.Password = secret
	}
}

func find(routers []model.DeviceProfile, id string) (*model.DeviceProfile, error) {
	if len(routers) == 0 {
		return nil, ErrNotFound
	}
	id = strings.TrimSpace(id)
	if id == "" {
		first := routers[0]
		return &first, nil
	}
	for _, router := range routers {
		if router.ID == id {
			found := router
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
}

func validateUnique(routers []model.DeviceProfile) error {
	seen := make(map[string]struct{}, len(routers))
	for _, router := range routers {
		if router.ID == "" {
			return errors.New("router id is required")
		}
		if _, dup := seen[router.ID]; dup {
			return fmt.Errorf("duplicate router id %q", router.ID)
		}
		seen[router.ID] = struct{}{}
	}
	return nil
}

func timeBasedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "router_" + uuid.NewString()
	}
	return "router_" + id.String()
}
