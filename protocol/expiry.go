package protocol

import "time"

var defaultTTLs = map[string]time.Duration{
	TypeOrderRequest:    30 * time.Minute,
	TypeOrderReschedule: 30 * time.Minute,
	TypeOrderAck:        30 * time.Minute,
	TypeOrderError:      30 * time.Minute,

	// Drivers may report from dead spots and sync hours later.
	TypeDeliveryReport: 12 * time.Hour,
	TypeOrderDelivered: 12 * time.Hour,

	TypeManifestPublished: 24 * time.Hour,
	TypeRunCompleted:      24 * time.Hour,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 10 * time.Minute

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	if env.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(env.ExpiresAt)
}

// IsExpiredHeader checks expiry using only the raw header.
func IsExpiredHeader(hdr *RawHeader) bool {
	if hdr.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(hdr.ExpiresAt)
}
