package quota

import (
	"errors"
	"fmt"
	"strings"

	"meetcap/internal/domain"
)

// ErrUnknownTier is returned for tiers outside the two supported plans.
var ErrUnknownTier = errors.New("unknown account tier")

const (
	FreeMaxDurationSeconds    = 30 * 60
	PremiumMaxDurationSeconds = 120 * 60
	SegmentLengthSeconds      = 10 * 60
)

var profiles = map[domain.Tier]domain.QuotaProfile{
	domain.TierFree: {
		MaxDurationSeconds:   FreeMaxDurationSeconds,
		SegmentLengthSeconds: SegmentLengthSeconds,
	},
	domain.TierPremium: {
		MaxDurationSeconds:   PremiumMaxDurationSeconds,
		SegmentLengthSeconds: SegmentLengthSeconds,
	},
}

// Resolve maps an account tier to its session quota.
func Resolve(tier domain.Tier) (domain.QuotaProfile, error) {
	profile, ok := profiles[tier]
	if !ok {
		return domain.QuotaProfile{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return profile, nil
}

// ParseTier accepts the tier flag as supplied by the account collaborator.
// The legacy "true"/"false" premium flag is accepted as well.
func ParseTier(value string) (domain.Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "free", "false", "":
		return domain.TierFree, nil
	case "premium", "true":
		return domain.TierPremium, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, value)
	}
}
