// Package steam resolves a verified Steam id into a full user identity and
// derives the user's trust weight from what they own and how much they play.
package steam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
)

const (
	MaxWeight         = 100
	maxPlaytimeWeight = 80
)

var (
	ErrNoOwnership         = errors.New("steam: base app not owned")
	ErrMissingRequiredDLCs = errors.New("steam: required dlcs not owned")
	// ErrUpstream wraps every failure to reach or understand the Web API.
	ErrUpstream = errors.New("steam: upstream unavailable")

	errInvalidBonus = errors.New("steam: dlc bonus out of range")
)

// DLC is a catalogue entry granting bonus weight to its owners.
type DLC struct {
	AppID  uint32 `yaml:"app_id"`
	Weight int    `yaml:"weight"`
}

// Catalogue describes the product: its base app, the DLCs a user must own
// to take part and the DLCs that add to the user's weight.
type Catalogue struct {
	BaseAppID    uint32   `yaml:"base_app_id"`
	RequiredDLCs []uint32 `yaml:"required_dlcs"`
	DLCs         []DLC    `yaml:"dlcs"`
}

type API interface {
	AppOwnership(ctx context.Context, steamID uint64) ([]App, error)
	Playtime(ctx context.Context, steamID uint64, appID uint32) (int, error)
	Level(ctx context.Context, steamID uint64) (int, error)
	Summary(ctx context.Context, steamID uint64) (PlayerSummary, error)
}

type Resolver struct {
	api       API
	catalogue Catalogue
	logger    *slog.Logger
}

func NewResolver(api API, catalogue Catalogue, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{api: api, catalogue: catalogue, logger: logger}
}

// Resolve checks ownership of the base app and required DLCs, then loads
// the player's profile and computes their weight.
func (r *Resolver) Resolve(ctx context.Context, steamID uint64) (models.User, error) {
	apps, err := r.api.AppOwnership(ctx, steamID)
	if err != nil {
		r.logger.Error("failed to check app ownership", "steam_id", steamID, "error", err)
		return models.User{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	owned := ownedAppIDs(apps)
	if !slices.Contains(owned, r.catalogue.BaseAppID) {
		r.logger.Warn("user does not own the base app", "steam_id", steamID)
		return models.User{}, ErrNoOwnership
	}
	for _, dlc := range r.catalogue.RequiredDLCs {
		if !slices.Contains(owned, dlc) {
			r.logger.Warn("user does not own the required dlcs", "steam_id", steamID, "missing", dlc)
			return models.User{}, ErrMissingRequiredDLCs
		}
	}

	var (
		playTime int
		level    int
		summary  PlayerSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		playTime, err = r.api.Playtime(gctx, steamID, r.catalogue.BaseAppID)
		return err
	})
	g.Go(func() (err error) {
		level, err = r.api.Level(gctx, steamID)
		return err
	})
	g.Go(func() (err error) {
		summary, err = r.api.Summary(gctx, steamID)
		return err
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("failed to fetch steam user", "steam_id", steamID, "error", err)
		return models.User{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	return models.User{
		ID:         steamID,
		Name:       summary.Name,
		Avatar:     summary.Avatar,
		ProfileURL: summary.ProfileURL,
		PlayTime:   playTime,
		Level:      level,
		OwnedApps:  owned,
		Weight:     r.weight(steamID, owned, playTime),
	}, nil
}

func (r *Resolver) weight(steamID uint64, owned []uint32, playTime int) int {
	w, err := weight(r.catalogue, owned, playTime)
	if err != nil {
		r.logger.Warn("error calculating weight from dlcs", "steam_id", steamID, "error", err)
		return 0
	}
	return w
}

// Weight rewards owned bonus DLCs and playtime, with diminishing returns on
// playtime so nobody reaches the maximum from hours alone. A catalogue that
// cannot be summed degrades the user to weight 0 instead of failing login.
func Weight(catalogue Catalogue, owned []uint32, playTimeMinutes int) int {
	w, err := weight(catalogue, owned, playTimeMinutes)
	if err != nil {
		return 0
	}
	return w
}

func weight(catalogue Catalogue, owned []uint32, playTimeMinutes int) (int, error) {
	bonus, err := dlcBonus(catalogue, owned)
	if err != nil {
		return 0, err
	}
	hours := float64(max(playTimeMinutes, 0)) / 60
	w := bonus + min(maxPlaytimeWeight, int(math.Round(hours/10)))
	return min(max(w, 0), MaxWeight), nil
}

func dlcBonus(catalogue Catalogue, owned []uint32) (int, error) {
	bonus := 0
	for _, app := range owned {
		if app == catalogue.BaseAppID {
			continue
		}
		for _, dlc := range catalogue.DLCs {
			if dlc.AppID != app {
				continue
			}
			if dlc.Weight < 0 || dlc.Weight > MaxWeight {
				return 0, fmt.Errorf("%w: app %d weight %d", errInvalidBonus, dlc.AppID, dlc.Weight)
			}
			bonus += dlc.Weight
		}
	}
	return bonus, nil
}

func ownedAppIDs(apps []App) []uint32 {
	owned := make([]uint32, 0, len(apps))
	for _, app := range apps {
		if app.OwnsApp {
			owned = append(owned, app.AppID)
		}
	}
	return owned
}
