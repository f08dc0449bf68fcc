// services/profile_validator.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dnd-mplus-bot/config"
	"dnd-mplus-bot/models"
	"dnd-mplus-bot/utils"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// ProfileLookup resolves a character's current stats. Errors wrap
// models.ErrNotFound when the character does not exist and models.ErrService
// on transient failures.
type ProfileLookup interface {
	Lookup(ctx context.Context, character, realm string) (models.ProfileStats, error)
}

// BlizzardClient talks to the Blizzard profile API.
type BlizzardClient struct {
	characterURL string
	mythicURL    string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
}

type characterProfile struct {
	CharacterClass struct {
		Name string `json:"name"`
	} `json:"character_class"`
	EquippedItemLevel int `json:"equipped_item_level"`
}

type mythicProfile struct {
	MythicRating struct {
		Rating float64 `json:"rating"`
	} `json:"mythic_rating"`
	BestRuns []struct {
		KeystoneLevel int `json:"keystone_level"`
	} `json:"best_runs"`
}

// NewBlizzardClient builds a client authenticated with the client credentials
// grant. Tokens are fetched lazily and refreshed on expiry.
func NewBlizzardClient(cfg config.BlizzardConfig, logger *zap.Logger) *BlizzardClient {
	base := utils.NewHTTPClient(cfg.Timeout)
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.OAuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cc.Client(ctx)
	httpClient.Timeout = base.Timeout

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlizzardClient{
		characterURL: cfg.CharacterURL,
		mythicURL:    cfg.MythicProfileURL,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger,
	}
}

// Lookup fetches class and item level from the character profile, then rating
// and highest timed key from the mythic keystone profile. A character without
// a keystone profile this season reports zero rating and no key.
func (c *BlizzardClient) Lookup(ctx context.Context, character, realm string) (models.ProfileStats, error) {
	replacer := strings.NewReplacer(
		"{realm}", url.PathEscape(RealmSlug(realm)),
		"{character_name}", url.PathEscape(characterKey(character)),
	)

	var profile characterProfile
	status, err := c.getJSON(ctx, replacer.Replace(c.characterURL), &profile)
	if err != nil {
		return models.ProfileStats{}, &models.ServiceError{Op: "character profile", Status: status, Err: err}
	}
	if status == http.StatusNotFound {
		return models.ProfileStats{}, fmt.Errorf("%w: character %s-%s", models.ErrNotFound, character, realm)
	}

	stats := models.ProfileStats{
		Class:     profile.CharacterClass.Name,
		ItemLevel: profile.EquippedItemLevel,
	}

	var mythic mythicProfile
	status, err = c.getJSON(ctx, replacer.Replace(c.mythicURL), &mythic)
	if err != nil {
		return models.ProfileStats{}, &models.ServiceError{Op: "mythic keystone profile", Status: status, Err: err}
	}
	if status == http.StatusNotFound {
		c.logger.Info("No keystone profile for character",
			zap.String("character", character), zap.String("realm", realm))
		return stats, nil
	}

	stats.Rating = mythic.MythicRating.Rating
	for _, run := range mythic.BestRuns {
		if run.KeystoneLevel > stats.HighestKey {
			stats.HighestKey = run.KeystoneLevel
		}
	}
	return stats, nil
}

// getJSON decodes a 200 body into out. A 404 is returned as a status with no
// error; every other outcome is an error.
func (c *BlizzardClient) getJSON(ctx context.Context, target string, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request to %s: %w", target, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Profile service returned non-200",
			zap.String("url", target), zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode %s: %w", target, err)
	}
	return resp.StatusCode, nil
}

// RetryPolicy bounds retries of transient profile failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Sleep waits between attempts; nil waits on a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries a service error twice, waiting 500ms then 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// LookupWithRetry calls lookup, retrying only service errors with exponential
// backoff. Not-found is returned immediately.
func LookupWithRetry(ctx context.Context, lookup ProfileLookup, character, realm string, policy RetryPolicy) (models.ProfileStats, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	interval := policy.InitialInterval
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		stats, err := lookup.Lookup(ctx, character, realm)
		if err == nil {
			return stats, nil
		}
		lastErr = err
		if !errors.Is(err, models.ErrService) || attempt == policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return models.ProfileStats{}, err
		}
		next := time.Duration(float64(interval) * policy.Multiplier)
		if policy.MaxInterval > 0 && next > policy.MaxInterval {
			next = policy.MaxInterval
		}
		interval = next
	}
	return models.ProfileStats{}, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
