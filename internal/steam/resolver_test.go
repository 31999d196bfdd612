package steam_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/uservoice/backend/internal/steam"
	"github.com/emilythestrangee/uservoice/backend/internal/steam/steamtest"
)

const (
	baseApp    uint32 = 1000
	darkMode   uint32 = 1001
	donation   uint32 = 1002
	requiredID uint32 = 1003
	playerID   uint64 = 76561198000000001
)

var catalogue = steam.Catalogue{
	BaseAppID: baseApp,
	DLCs: []steam.DLC{
		{AppID: darkMode, Weight: 10},
		{AppID: donation, Weight: 25},
	},
}

func owned(ids ...uint32) []steam.App {
	apps := make([]steam.App, 0, len(ids))
	for _, id := range ids {
		apps = append(apps, steam.App{AppID: id, OwnsApp: true})
	}
	return apps
}

func player(apps []steam.App) steamtest.Player {
	return steamtest.Player{
		SteamID:  playerID,
		Apps:     apps,
		Playtime: steamtest.Float(1200),
		Level:    steamtest.Int(7),
		Summary: &steam.PlayerSummary{
			Name:       "gordon",
			Avatar:     "https://avatars.example/full.jpg",
			ProfileURL: "https://steamcommunity.com/id/gordon/",
		},
	}
}

func newResolver(t *testing.T, cat steam.Catalogue, players ...steamtest.Player) (*steam.Resolver, *steamtest.Server) {
	t.Helper()
	srv := steamtest.NewServer(t, players...)
	client := steam.NewClient(srv.URL, steamtest.APIKey, srv.Client())
	return steam.NewResolver(client, cat, nil), srv
}

func TestResolveBuildsIdentity(t *testing.T) {
	apps := append(owned(baseApp, darkMode), steam.App{AppID: donation, OwnsApp: false})
	r, _ := newResolver(t, catalogue, player(apps))

	user, err := r.Resolve(context.Background(), playerID)
	require.NoError(t, err)

	assert.Equal(t, playerID, user.ID)
	assert.Equal(t, "gordon", user.Name)
	assert.Equal(t, "https://avatars.example/full.jpg", user.Avatar)
	assert.Equal(t, "https://steamcommunity.com/id/gordon/", user.ProfileURL)
	assert.Equal(t, 1200, user.PlayTime)
	assert.Equal(t, 7, user.Level)
	assert.Equal(t, []uint32{baseApp, darkMode}, user.OwnedApps)
	// 10 for the dark mode dlc + round(1200/60/10) for playtime.
	assert.Equal(t, 12, user.Weight)
}

func TestResolveOwnershipFailures(t *testing.T) {
	withRequired := catalogue
	withRequired.RequiredDLCs = []uint32{requiredID}

	tests := []struct {
		name string
		cat  steam.Catalogue
		apps []steam.App
		want error
	}{
		{"no apps", catalogue, nil, steam.ErrNoOwnership},
		{"base app listed but not owned", catalogue, []steam.App{{AppID: baseApp}}, steam.ErrNoOwnership},
		{"missing required dlc", withRequired, owned(baseApp, darkMode), steam.ErrMissingRequiredDLCs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newResolver(t, tt.cat, player(tt.apps))
			_, err := r.Resolve(context.Background(), playerID)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveRequiredDLCOwned(t *testing.T) {
	withRequired := catalogue
	withRequired.RequiredDLCs = []uint32{requiredID}
	r, _ := newResolver(t, withRequired, player(owned(baseApp, requiredID)))

	user, err := r.Resolve(context.Background(), playerID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{baseApp, requiredID}, user.OwnedApps)
}

func TestResolveUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *steamtest.Player)
		fail   string
	}{
		{name: "ownership endpoint down", fail: "/ISteamUser/GetPublisherAppOwnership/v3/"},
		{name: "summary endpoint down", fail: "/ISteamUser/GetPlayerSummaries/v2/"},
		{name: "playtime missing", mutate: func(p *steamtest.Player) { p.Playtime = nil }},
		{name: "summary missing", mutate: func(p *steamtest.Player) { p.Summary = nil }},
		{name: "summary without name", mutate: func(p *steamtest.Player) { p.Summary.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := player(owned(baseApp))
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			r, srv := newResolver(t, catalogue, p)
			if tt.fail != "" {
				srv.Fail(tt.fail)
			}
			_, err := r.Resolve(context.Background(), playerID)
			assert.ErrorIs(t, err, steam.ErrUpstream)
		})
	}
}

func TestResolveLevelDefaultsToZero(t *testing.T) {
	p := player(owned(baseApp))
	p.Level = nil
	r, _ := newResolver(t, catalogue, p)

	user, err := r.Resolve(context.Background(), playerID)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Level)
}

func TestResolveZeroPlaytimeIsValid(t *testing.T) {
	p := player(owned(baseApp))
	p.Playtime = steamtest.Float(0)
	r, _ := newResolver(t, catalogue, p)

	user, err := r.Resolve(context.Background(), playerID)
	require.NoError(t, err)
	assert.Equal(t, 0, user.PlayTime)
	assert.Equal(t, 0, user.Weight)
}

func TestResolveRejectsWrongKey(t *testing.T) {
	srv := steamtest.NewServer(t, player(owned(baseApp)))
	r := steam.NewResolver(steam.NewClient(srv.URL, "wrong", srv.Client()), catalogue, nil)

	_, err := r.Resolve(context.Background(), playerID)
	assert.ErrorIs(t, err, steam.ErrUpstream)
}

func TestWeight(t *testing.T) {
	tests := []struct {
		name     string
		owned    []uint32
		playTime int
		want     int
	}{
		{"nothing", []uint32{baseApp}, 0, 0},
		{"one dlc and twenty hours", []uint32{baseApp, darkMode}, 1200, 12},
		{"both dlcs", []uint32{baseApp, darkMode, donation}, 0, 35},
		{"half rounds up", []uint32{baseApp}, 300, 1},
		{"just under half rounds down", []uint32{baseApp}, 299, 0},
		{"playtime capped at eighty", []uint32{baseApp}, 60 * 10 * 500, 80},
		{"total clamped at hundred", []uint32{baseApp, darkMode, donation}, 60 * 10 * 500, 100},
		{"unknown apps ignored", []uint32{baseApp, 4242}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, steam.Weight(catalogue, tt.owned, tt.playTime))
		})
	}
}

func TestWeightIgnoresBaseAppInCatalogue(t *testing.T) {
	cat := catalogue
	cat.DLCs = append(cat.DLCs, steam.DLC{AppID: baseApp, Weight: 50})
	assert.Equal(t, 0, steam.Weight(cat, []uint32{baseApp}, 0))
}

func TestWeightDegradesToZeroOnBadCatalogue(t *testing.T) {
	cat := steam.Catalogue{
		BaseAppID: baseApp,
		DLCs:      []steam.DLC{{AppID: darkMode, Weight: -5}},
	}
	// Playtime alone would be worth 2; the broken bonus table zeroes everything.
	assert.Equal(t, 0, steam.Weight(cat, []uint32{baseApp, darkMode}, 1200))
	// Users who do not own the broken entry are unaffected.
	assert.Equal(t, 2, steam.Weight(cat, []uint32{baseApp}, 1200))
}

func TestResolveLogsDegradedWeightWithSteamID(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cat := steam.Catalogue{
		BaseAppID: baseApp,
		DLCs:      []steam.DLC{{AppID: darkMode, Weight: 500}},
	}
	srv := steamtest.NewServer(t, player(owned(baseApp, darkMode)))
	r := steam.NewResolver(steam.NewClient(srv.URL, steamtest.APIKey, srv.Client()), cat, logger)

	user, err := r.Resolve(context.Background(), playerID)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Weight)
	assert.Contains(t, logs.String(), "error calculating weight from dlcs")
	assert.Contains(t, logs.String(), "steam_id=76561198000000001")
}
