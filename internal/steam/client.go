package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultAPIURL is the Steam partner Web API host. Publisher endpoints such
// as GetPublisherAppOwnership are only served there.
const DefaultAPIURL = "https://partner.steam-api.com"

var errMissingField = errors.New("missing field in response")

// App is one entry of the publisher app ownership response.
type App struct {
	AppID        uint32 `json:"appid"`
	OwnsApp      bool   `json:"ownsapp"`
	Timestamp    string `json:"timestamp"`
	OwnerSteamID string `json:"ownersteamid"`
	SiteLicense  bool   `json:"sitelicense"`
}

type PlayerSummary struct {
	Name       string `json:"personaname"`
	Avatar     string `json:"avatarfull"`
	ProfileURL string `json:"profileurl"`
}

// Client talks to the Steam Web API with a publisher key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) AppOwnership(ctx context.Context, steamID uint64) ([]App, error) {
	var out struct {
		AppOwnership *struct {
			Apps []App `json:"apps"`
		} `json:"appownership"`
	}
	params := url.Values{"steamid": {formatID(steamID)}}
	if err := c.get(ctx, "/ISteamUser/GetPublisherAppOwnership/v3/", params, &out); err != nil {
		return nil, err
	}
	if out.AppOwnership == nil {
		return nil, fmt.Errorf("steam: app ownership: %w", errMissingField)
	}
	return out.AppOwnership.Apps, nil
}

// Playtime returns the lifetime playtime of appID in whole minutes.
func (c *Client) Playtime(ctx context.Context, steamID uint64, appID uint32) (int, error) {
	var out struct {
		Response *struct {
			PlaytimeForever *float64 `json:"playtime_forever"`
		} `json:"response"`
	}
	params := url.Values{
		"steamid": {formatID(steamID)},
		"appid":   {strconv.FormatUint(uint64(appID), 10)},
	}
	if err := c.get(ctx, "/IPlayerService/GetSingleGamePlaytime/v1/", params, &out); err != nil {
		return 0, err
	}
	if out.Response == nil || out.Response.PlaytimeForever == nil {
		return 0, fmt.Errorf("steam: playtime: %w", errMissingField)
	}
	return int(math.Round(*out.Response.PlaytimeForever)), nil
}

// Level returns the player's Steam level, or 0 when Steam does not report one.
func (c *Client) Level(ctx context.Context, steamID uint64) (int, error) {
	var out struct {
		Response *struct {
			PlayerLevel *int `json:"player_level"`
		} `json:"response"`
	}
	params := url.Values{"steamid": {formatID(steamID)}}
	if err := c.get(ctx, "/IPlayerService/GetSteamLevel/v1/", params, &out); err != nil {
		return 0, err
	}
	if out.Response == nil || out.Response.PlayerLevel == nil {
		return 0, nil
	}
	return *out.Response.PlayerLevel, nil
}

func (c *Client) Summary(ctx context.Context, steamID uint64) (PlayerSummary, error) {
	var out struct {
		Response *struct {
			Players []PlayerSummary `json:"players"`
		} `json:"response"`
	}
	params := url.Values{"steamids": {formatID(steamID)}}
	if err := c.get(ctx, "/ISteamUser/GetPlayerSummaries/v2/", params, &out); err != nil {
		return PlayerSummary{}, err
	}
	if out.Response == nil || len(out.Response.Players) == 0 {
		return PlayerSummary{}, fmt.Errorf("steam: player summary: %w", errMissingField)
	}
	summary := out.Response.Players[0]
	if summary.Name == "" || summary.Avatar == "" || summary.ProfileURL == "" {
		return PlayerSummary{}, fmt.Errorf("steam: player summary: %w", errMissingField)
	}
	return summary, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("steam: build request %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("steam: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("steam: %s responded with status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("steam: decode %s: %w", endpoint, err)
	}
	return nil
}

func formatID(steamID uint64) string {
	return strconv.FormatUint(steamID, 10)
}
