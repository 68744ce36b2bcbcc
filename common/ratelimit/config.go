package ratelimit

// UploadTier buckets archive requests by declared payload size. Large
// uploads hold connections and buffer space far longer than small ones,
// so each tier is throttled independently.
type UploadTier string

const (
	TierSmall UploadTier = "small" // Under 1 MiB
	TierMedia UploadTier = "media" // 1 MiB to 100 MiB
	TierBulk  UploadTier = "bulk"  // Over 100 MiB
)

const (
	tierSmallCeiling = 1 << 20   // 1 MiB
	tierMediaCeiling = 100 << 20 // 100 MiB
)

// TierConfig defines rate limits for each upload tier
type TierConfig struct {
	Tier          UploadTier
	Limit         int64  // Requests allowed per window
	WindowSeconds int    // Time window in seconds
	Description   string // Human-readable description
}

// Default tier configurations
var DefaultTierConfigs = map[UploadTier]TierConfig{
	TierSmall: {
		Tier:          TierSmall,
		Limit:         120,
		WindowSeconds: 60,
		Description:   "Small uploads (under 1 MiB) - 120 per minute",
	},
	TierMedia: {
		Tier:          TierMedia,
		Limit:         30,
		WindowSeconds: 60,
		Description:   "Media uploads (1-100 MiB) - 30 per minute",
	},
	TierBulk: {
		Tier:          TierBulk,
		Limit:         5,
		WindowSeconds: 60,
		Description:   "Bulk uploads (over 100 MiB) - 5 per minute",
	},
}

// GlobalConfig contains global service-wide limits
type GlobalConfig struct {
	Limit         int64 // Total requests per window (all sources)
	WindowSeconds int   // Time window
}

// Default global configuration
var DefaultGlobalConfig = GlobalConfig{
	Limit:         600, // Total archive requests per minute across all sources
	WindowSeconds: 60,
}

// ClassifyUpload maps a declared payload size to its tier. Unknown sizes
// land in the bulk tier, the most restrictive one.
func ClassifyUpload(sizeBytes int64) UploadTier {
	switch {
	case sizeBytes > 0 && sizeBytes < tierSmallCeiling:
		return TierSmall
	case sizeBytes >= tierSmallCeiling && sizeBytes <= tierMediaCeiling:
		return TierMedia
	default:
		return TierBulk
	}
}

// GetLimitForTier returns the rate limit for a given tier
func GetLimitForTier(tier UploadTier) int64 {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.Limit
	}
	// Fallback to most restrictive tier
	return DefaultTierConfigs[TierBulk].Limit
}

// GetWindowForTier returns the time window for a given tier
func GetWindowForTier(tier UploadTier) int {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.WindowSeconds
	}
	return DefaultTierConfigs[TierBulk].WindowSeconds
}

// GetAllTiers returns all configured tiers for documentation/API responses
func GetAllTiers() []TierConfig {
	return []TierConfig{
		DefaultTierConfigs[TierSmall],
		DefaultTierConfigs[TierMedia],
		DefaultTierConfigs[TierBulk],
	}
}
