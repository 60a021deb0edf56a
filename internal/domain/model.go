package domain

import (
	"time"

	"github.com/google/uuid"
)

// Core domain models for the anticlone protocol. HTTP payloads are shaped in
// the http adapter; keep these decoupled from wire formats.

type ActionType string

const (
	ActionNone          ActionType = "none"
	ActionRedirect      ActionType = "redirect"
	ActionReplaceLinks  ActionType = "replace_links"
	ActionReplaceImages ActionType = "replace_images"
)

// ParseActionType maps a stored or user supplied name to an ActionType.
// Unknown names map to ActionNone.
func ParseActionType(s string) ActionType {
	switch ActionType(s) {
	case ActionRedirect, ActionReplaceLinks, ActionReplaceImages:
		return ActionType(s)
	}
	return ActionNone
}

// Countermeasure is what a protected site wants done to its clones.
type Countermeasure struct {
	Type   ActionType
	Target string
}

// Active reports whether the countermeasure would mutate a clone.
func (c Countermeasure) Active() bool {
	return c.Type != ActionNone && c.Type != "" && c.Target != ""
}

type ProtectedSite struct {
	ID             uuid.UUID
	OriginalDomain string
	Countermeasure Countermeasure
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CloneDetection is one ledger row per (site, clone url).
type CloneDetection struct {
	ID              int64
	ProtectedSiteID uuid.UUID
	CloneURL        string
	CloneDomain     string
	AccessCount     int64
	FirstSeenAt     time.Time
	LastAccessAt    time.Time
}

// RequestMeta is what we know about the visitor of a clone.
type RequestMeta struct {
	IP        string
	UserAgent string
	Referrer  string
	Country   string
	Region    string
	City      string
}

type AccessLogEntry struct {
	ID               int64
	ProtectedSiteID  uuid.UUID
	CloneDetectionID *int64
	CloneURL         string
	Meta             RequestMeta
	AccessedAt       time.Time
}

type Action struct {
	Type ActionType `json:"type"`
	Data string     `json:"data"`
}

// Directive is returned to the beacon. Action is nil unless IsClone and the
// site has an active countermeasure.
type Directive struct {
	IsClone bool    `json:"isClone"`
	Action  *Action `json:"action,omitempty"`
}

// NotClone is the inert directive.
func NotClone() Directive { return Directive{} }
