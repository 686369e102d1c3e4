package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedEvent   = errors.New("core: unsupported event")
	ErrEmptySerial        = errors.New("core: serial is empty after cleaning")
	ErrTaskNotFound       = errors.New("core: task not found")
	ErrSubscriberNotFound = errors.New("core: subscriber not found")
)

type TaskKind string

const (
	TaskKindCardCreate TaskKind = "cardcreate"
)

// Task is the unit of durable retryable work. A task stays eligible for
// replay only while AttemptCount < max attempts; once the cap is reached it
// freezes in the store for manual inspection and is never deleted
// automatically.
type Task struct {
	ID            string
	Kind          TaskKind
	Serial        string
	Event         string
	CachedPayload []byte
	AttemptCount  int
	LastAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
}

// Frozen reports whether the task has exhausted its attempt budget.
func (t Task) Frozen(maxAttempts int) bool {
	return maxAttempts > 0 && t.AttemptCount >= maxAttempts
}

// Subscriber is the locally persisted identity record. BonusGranted moves
// false -> true at most once, claimed through a conditional update.
type Subscriber struct {
	UUID         string
	Email        string
	Phone        string
	BonusGranted bool
	CreatedAt    time.Time
}

// Profile is the Identity Resolution API response. It lives for a single
// pipeline execution unless the upsert payload built from it is cached
// inside a Task for byte-for-byte replay.
type Profile struct {
	Email         string
	Phone         string
	FirstName     string
	LastName      string
	BirthDate     string
	Gender        string
	CardNumber    string
	Balance       float64
	CheckCount    int
	AverageCheck  float64
	RegisterDate  string
	LastVisitDate string
	RestoID       int
	OsmiSetup     bool
	Segments      []string
	Raw           map[string]any
}

// FullName joins the name parts, falling back to "Unknown" when both are
// absent so the directory upsert never carries an empty name.
func (p Profile) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return "Unknown"
	}
	return name
}

// UpsertPayload is the subscriber-directory upsert body. The struct field
// order is fixed so the serialized bytes of a rebuilt payload are stable.
type UpsertPayload struct {
	Email   string         `json:"email"`
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Lists   []int          `json:"lists"`
	Attribs map[string]any `json:"attribs"`
}

// BuildUpsertPayload maps a resolved profile into the directory's upsert
// contract for the configured target list.
func BuildUpsertPayload(profile Profile, listID int) UpsertPayload {
	attribs := map[string]any{
		"phone":           strings.TrimSpace(profile.Phone),
		"birth_date":      strings.TrimSpace(profile.BirthDate),
		"gender":          strings.TrimSpace(profile.Gender),
		"card_number":     strings.TrimSpace(profile.CardNumber),
		"balance":         profile.Balance,
		"check_count":     profile.CheckCount,
		"average_check":   profile.AverageCheck,
		"register_date":   strings.TrimSpace(profile.RegisterDate),
		"last_visit_date": strings.TrimSpace(profile.LastVisitDate),
		"resto_id":        profile.RestoID,
		"osmi_setup":      profile.OsmiSetup,
	}
	if len(profile.Segments) > 0 {
		attribs["segments"] = append([]string(nil), profile.Segments...)
	}
	return UpsertPayload{
		Email:   strings.TrimSpace(profile.Email),
		Name:    profile.FullName(),
		Status:  "enabled",
		Lists:   []int{listID},
		Attribs: attribs,
	}
}

// CleanSerial strips the variant marker: everything from the first '-'
// onward is discarded. An empty result is a non-retryable validation
// failure.
func CleanSerial(serial string) (string, error) {
	cleaned := strings.TrimSpace(serial)
	if idx := strings.Index(cleaned, "-"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptySerial, serial)
	}
	return cleaned, nil
}

// DirectoryEntry is one row of the subscriber-directory listing API.
type DirectoryEntry struct {
	UUID    string
	Email   string
	Status  string
	Phone   string
	Lists   []DirectoryListMembership
	Attribs map[string]any
}

type DirectoryListMembership struct {
	ID                 int
	SubscriptionStatus string
}

// ConfirmedFor reports whether the entry is enabled and confirmed for the
// target list with a resolvable phone number.
func (e DirectoryEntry) ConfirmedFor(listID int) bool {
	if strings.TrimSpace(e.UUID) == "" || strings.TrimSpace(e.Phone) == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(e.Status), "enabled") {
		return false
	}
	for _, membership := range e.Lists {
		if membership.ID == listID && strings.EqualFold(strings.TrimSpace(membership.SubscriptionStatus), "confirmed") {
			return true
		}
	}
	return false
}

// RetryStats summarizes a single retry-scheduler pass.
type RetryStats struct {
	Due     int
	Retired int
	Failed  int
	Frozen  int
}

// BonusStats summarizes a single bonus-reconciliation pass.
type BonusStats struct {
	Listed     int
	Skipped    int
	Granted    int
	AlreadySet int
	Failed     int
}
