package domain

import (
	"regexp"
	"strings"
	"time"
)

// InteractionKind is the engagement event being counted
type InteractionKind string

// Interaction kinds
const (
	InteractionView  InteractionKind = "view"
	InteractionLike  InteractionKind = "like"
	InteractionShare InteractionKind = "share"
	InteractionTip   InteractionKind = "tip"
)

// Deduplicated reports whether the kind counts each actor at most once
func (k InteractionKind) Deduplicated() bool {
	return k == InteractionView || k == InteractionLike
}

// Valid reports whether k is a known interaction kind
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionView, InteractionLike, InteractionShare, InteractionTip:
		return true
	}
	return false
}

// InteractionEvent is an audit entry for non-deduplicated interactions
type InteractionEvent struct {
	ContentID string          `json:"content_id" db:"content_id"`
	Kind      InteractionKind `json:"kind" db:"kind"`
	ActorID   string          `json:"actor_id,omitempty" db:"actor_id"`
	Detail    string          `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Content is a published content item, created when its processing job completes
type Content struct {
	ID         string    `json:"id" db:"id"`
	Owner      string    `json:"owner" db:"owner"`
	Title      string    `json:"title" db:"title"`
	ContentURI string    `json:"content_uri" db:"content_uri"`
	TokenID    string    `json:"token_id" db:"token_id"`
	TxHash     string    `json:"tx_hash" db:"tx_hash"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeIdentity validates a wallet address and returns its canonical lower-case form
func NormalizeIdentity(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !walletAddressPattern.MatchString(address) {
		return "", InvalidInputf("invalid wallet address")
	}
	return strings.ToLower(address), nil
}

// AnonymousViewer namespaces an anonymous session id so it never collides with a wallet address
func AnonymousViewer(sessionID string) string {
	return "anon:" + strings.TrimSpace(sessionID)
}
