// Package identity assigns identifiers, concurrency tokens and storage keys.
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dashboards/internal/domain"
	"dashboards/internal/domain/repositories"
)

// TokenLayout is the fixed-width UTC layout of updatedAt tokens. Fixed width
// keeps lexicographic order equal to time order.
const TokenLayout = "2006-01-02T15:04:05.000000Z"

// forkNamespace seeds deterministic widget ids for fork copies.
var forkNamespace = uuid.MustParse("6f1c2a4e-8d3b-4f0a-9c57-2b9e1d7a5c10")

// NewID returns a random identifier for a new dashboard, widget or topic area.
func NewID() string {
	return uuid.NewString()
}

// ForkWidgetID returns the id a copy of sourceWidgetID receives in the draft
// targetDashboardID. Repeated copies map to the same id.
func ForkWidgetID(sourceWidgetID, targetDashboardID string) string {
	return uuid.NewSHA1(forkNamespace, []byte(sourceWidgetID+"/"+targetDashboardID)).String()
}

// Clock issues concurrency tokens.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FormatToken renders t as an updatedAt token.
func FormatToken(t time.Time) string {
	return t.UTC().Format(TokenLayout)
}

// ParseToken parses an updatedAt token. Any RFC 3339 timestamp is accepted
// and normalised.
func ParseToken(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NormalizeToken re-renders a client-supplied token in the stored layout, so
// "2024-01-02T03:04:05Z" compares equal to "2024-01-02T03:04:05.000000Z".
func NormalizeToken(s string) (string, error) {
	t, err := ParseToken(s)
	if err != nil {
		return "", err
	}
	return FormatToken(t), nil
}

// RequireToken normalises the token a client sent with a guarded write.
// A missing or malformed token is an invalid request.
func RequireToken(s string) (string, error) {
	if s == "" {
		return "", &domain.ValidationError{Message: "updatedAt is required"}
	}
	tok, err := NormalizeToken(s)
	if err != nil {
		return "", &domain.ValidationError{Message: "updatedAt must be an ISO-8601 timestamp"}
	}
	return tok, nil
}

// Tokens issues strictly increasing tokens from a Clock. A successful write
// must always move the token forward, even within one clock tick.
type Tokens struct {
	clock Clock
	mu    sync.Mutex
	last  time.Time
}

func NewTokens(clock Clock) *Tokens {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Tokens{clock: clock}
}

// Next returns a token later than both the previous token issued here and prev.
func (t *Tokens) Next(prev string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().UTC().Truncate(time.Microsecond)
	floor := t.last
	if p, err := ParseToken(prev); err == nil && p.After(floor) {
		floor = p
	}
	if !now.After(floor) {
		now = floor.Add(time.Microsecond)
	}
	t.last = now
	return FormatToken(now)
}

// Item types.
const (
	TypeDashboard   = "Dashboard"
	TypeVersionSlot = "VersionSlot"
	TypeWidget      = "Widget"
	TypeFriendlyURL = "FriendlyURL"
	TypeAuditLog    = "AuditLog"
	TypeTopicArea   = "TopicArea"
)

const (
	dashboardPrefix   = "Dashboard#"
	familyPrefix      = "Family#"
	versionPrefix     = "Version#"
	widgetPrefix      = "Widget#"
	friendlyURLPrefix = "FriendlyURL#"
	auditPrefix       = "AuditLog#"
	topicAreaPrefix   = "TopicArea#"
)

func DashboardKey(id string) repositories.Key {
	return repositories.Key{PK: dashboardPrefix + id, SK: dashboardPrefix + id}
}

// VersionSlotKey addresses the (family, version) row.
func VersionSlotKey(familyID string, version int) repositories.Key {
	return repositories.Key{PK: FamilyPartition(familyID), SK: fmt.Sprintf("%s%08d", versionPrefix, version)}
}

func FamilyPartition(familyID string) string { return familyPrefix + familyID }

// VersionSlotPrefix is the sort-key prefix of slot rows.
const VersionSlotPrefix = versionPrefix

func WidgetKey(dashboardID, widgetID string) repositories.Key {
	return repositories.Key{PK: dashboardPrefix + dashboardID, SK: widgetPrefix + widgetID}
}

// WidgetPartition returns the partition holding a dashboard's widgets.
func WidgetPartition(dashboardID string) string { return dashboardPrefix + dashboardID }

// WidgetSortPrefix is the sort-key prefix of widget rows.
const WidgetSortPrefix = widgetPrefix

func FriendlyURLKey(slug string) repositories.Key {
	return repositories.Key{PK: friendlyURLPrefix + slug, SK: friendlyURLPrefix + slug}
}

func TopicAreaKey(id string) repositories.Key {
	return repositories.Key{PK: topicAreaPrefix + id, SK: topicAreaPrefix + id}
}

// AuditKey widens the timestamp with the change id so entries observed in
// the same tick stay distinct while a redelivered change maps to itself.
func AuditKey(familyID, timestamp, changeID string) repositories.Key {
	return repositories.Key{PK: AuditPartition(familyID), SK: timestamp + "#" + changeID}
}

func AuditPartition(familyID string) string { return auditPrefix + familyID }

// IDFromKey strips the type prefix from a partition key.
func IDFromKey(pk string) string {
	if i := strings.IndexByte(pk, '#'); i >= 0 {
		return pk[i+1:]
	}
	return pk
}

// VersionFromSlotKey parses the version number out of a slot sort key.
func VersionFromSlotKey(sk string) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(sk, versionPrefix))
}
