package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/osmi-labs/cardlink/core"
)

const (
	defaultRequestTimeout   = 10 * time.Second
	maxProfileResponseBytes = 1 << 20 // 1 MiB
)

var ErrProfileNotFound = errors.New("identity: profile not found")

// ProfileNotFoundError wraps the upstream cause so callers can log it while
// still matching on ErrProfileNotFound.
type ProfileNotFoundError struct {
	Cause error
}

func (e *ProfileNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound.Error()
	}
	return ErrProfileNotFound.Error() + ": " + e.Cause.Error()
}

func (e *ProfileNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrProfileNotFound
	}
	return errors.Join(ErrProfileNotFound, e.Cause)
}

func (e *ProfileNotFoundError) ToServiceError() *goerrors.Error {
	message := ErrProfileNotFound.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode("PROFILE_NOT_FOUND")
}

func profileNotFound(cause error) error {
	return &ProfileNotFoundError{Cause: cause}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL        string
	APIKey         string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
}

// Resolver looks up customer profiles by cleaned card serial against the
// identity resolution API: GET <base>?number=<serial>&api_key=<key>.
type Resolver struct {
	baseURL        string
	apiKey         string
	httpClient     HTTPDoer
	requestTimeout time.Duration
}

func NewResolver(cfg Config) (*Resolver, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("identity: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("identity: api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Resolver{
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, serial string) (core.Profile, error) {
	if r == nil || r.httpClient == nil {
		return core.Profile{}, fmt.Errorf("identity: resolver is not configured")
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return core.Profile{}, fmt.Errorf("identity: serial is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := r.fetchProfile(ctx, serial)
	if err != nil {
		return core.Profile{}, profileNotFound(err)
	}
	return profileFromPayload(payload), nil
}

func (r *Resolver) fetchProfile(ctx context.Context, serial string) (map[string]any, error) {
	requestCtx := ctx
	cancel := func() {}
	if r.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, r.requestTimeout)
	}
	defer cancel()

	endpoint, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("identity: parse base url: %w", err)
	}
	query := endpoint.Query()
	query.Set("number", serial)
	query.Set("api_key", r.apiKey)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxProfileResponseBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("identity: read profile response: %w", readErr)
	}
	if int64(len(body)) > maxProfileResponseBytes {
		return nil, fmt.Errorf("identity: profile response exceeds %d bytes", maxProfileResponseBytes)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: profile endpoint returned status %d", res.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("identity: decode profile response: %w", err)
	}
	return payload, nil
}

func profileFromPayload(payload map[string]any) core.Profile {
	return core.Profile{
		Email:         strings.TrimSpace(readString(payload["email"])),
		Phone:         strings.TrimSpace(readString(payload["phone"])),
		FirstName:     strings.TrimSpace(readString(payload["first_name"])),
		LastName:      strings.TrimSpace(readString(payload["last_name"])),
		BirthDate:     strings.TrimSpace(readString(payload["birth_date"])),
		Gender:        strings.TrimSpace(readString(payload["gender"])),
		CardNumber:    strings.TrimSpace(readString(payload["card_number"])),
		Balance:       readFloat(payload["balance"]),
		CheckCount:    int(readFloat(payload["check_count"])),
		AverageCheck:  readFloat(payload["average_check"]),
		RegisterDate:  strings.TrimSpace(readString(payload["register_date"])),
		LastVisitDate: strings.TrimSpace(readString(payload["last_visit_date"])),
		RestoID:       int(readFloat(payload["resto_id"])),
		OsmiSetup:     readBool(payload["osmi_setup"]),
		Segments:      readSegmentNames(payload["segments"]),
		Raw:           copyMap(payload),
	}
}

// readSegmentNames extracts the name of each segment object; the upstream
// ships segments as [{"name": "..."}].
func readSegmentNames(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(readString(entry["name"]))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

func copyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case json.Number:
		return strings.TrimSpace(typed.String())
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readFloat(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return typed
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func readBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return err == nil && parsed
	case json.Number:
		parsed, err := typed.Int64()
		return err == nil && parsed != 0
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	default:
		return false
	}
}

var _ core.IdentityResolver = (*Resolver)(nil)
