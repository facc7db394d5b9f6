// Package ratelimit - fixed-window request rate limiting
//
// This is deliberately a fixed window, not a sliding one: bursts straddling a
// window boundary are accepted as a known trade-off.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/riskfortress/intake/models"
)

// Profile one named rate limit profile
type Profile struct {
	// Name profile name used to select the limit at call sites
	Name string
	// Ceiling maximum requests per identifier within one window
	Ceiling int
	// Window the fixed window duration
	Window time.Duration
}

// DefaultProfiles the standard limit profiles
//
//	intake:      5 requests / 60s
//	contact:    10 requests / 300s
//	generic-api: 100 requests / 60s
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "intake", Ceiling: 5, Window: time.Minute},
		{Name: "contact", Ceiling: 10, Window: 5 * time.Minute},
		{Name: "generic-api", Ceiling: 100, Window: time.Minute},
	}
}

// CounterStore per-(profile, identifier) window counter storage
//
// Take must serialize increments for one key so concurrent requests never
// lose updates. Different keys are fully independent.
type CounterStore interface {
	/*
		Take count one request against a window counter

			@param ctx context.Context - execution context
			@param key string - the (profile, identifier) counter key
			@param ceiling int - the profile request ceiling
			@param window time.Duration - the fixed window duration
			@returns whether the request fit the ceiling, the requests used so
			    far within the window, and the window expiry
	*/
	Take(
		ctx context.Context, key string, ceiling int, window time.Duration,
	) (allowed bool, used int, reset time.Time, err error)
}

// Limiter fixed-window rate limiter over a set of named profiles
type Limiter interface {
	/*
		Limit count one request from an identifier against a limit profile

			@param ctx context.Context - execution context
			@param profileName string - the limit profile to apply
			@param identifier string - the client identifier (IP)
			@returns the rate limit decision
	*/
	Limit(
		ctx context.Context, profileName string, identifier string,
	) (models.RateLimitDecision, error)
}

// fixedWindowLimiter implements Limiter
type fixedWindowLimiter struct {
	goutils.Component
	store    CounterStore
	profiles map[string]Profile
}

/*
NewFixedWindowLimiter define new fixed-window rate limiter

	@param store CounterStore - window counter storage
	@param profiles []Profile - the limit profiles to serve
	@returns limiter instance
*/
func NewFixedWindowLimiter(store CounterStore, profiles []Profile) (Limiter, error) {
	logTags := log.Fields{"module": "ratelimit", "component": "fixed-window-limiter"}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("no rate limit profiles given")
	}

	byName := make(map[string]Profile, len(profiles))
	for _, profile := range profiles {
		if profile.Ceiling <= 0 || profile.Window <= 0 {
			return nil, fmt.Errorf("rate limit profile '%s' is invalid", profile.Name)
		}
		byName[profile.Name] = profile
	}

	return &fixedWindowLimiter{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		store:    store,
		profiles: byName,
	}, nil
}

/*
Limit count one request from an identifier against a limit profile

	@param ctx context.Context - execution context
	@param profileName string - the limit profile to apply
	@param identifier string - the client identifier (IP)
	@returns the rate limit decision
*/
func (l *fixedWindowLimiter) Limit(
	ctx context.Context, profileName string, identifier string,
) (models.RateLimitDecision, error) {
	profile, ok := l.profiles[profileName]
	if !ok {
		return models.RateLimitDecision{}, fmt.Errorf(
			"unknown rate limit profile '%s'", profileName,
		)
	}

	key := fmt.Sprintf("%s:%s", profile.Name, identifier)
	allowed, used, reset, err := l.store.Take(ctx, key, profile.Ceiling, profile.Window)
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf(
			"rate limit counter update for '%s' failed [%w]", key, err,
		)
	}

	remaining := profile.Ceiling - used
	if remaining < 0 {
		remaining = 0
	}

	return models.RateLimitDecision{
		Allowed:   allowed,
		Limit:     profile.Ceiling,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}
