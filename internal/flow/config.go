package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"kycflow/internal/domain"
	"kycflow/pkg/platform/sentinel"
	pstrings "kycflow/pkg/platform/strings"
)

// Config is a resolved flow: ordered steps plus feature toggles.
type Config struct {
	Steps    []domain.StepKind
	Settings domain.FlowSettings
}

// ConfigSource supplies the flow configuration for a user.
type ConfigSource interface {
	FlowConfig(ctx context.Context, userID string) (Config, error)
}

// DefaultStepIDs is the flow used when no configuration service is set.
var DefaultStepIDs = []string{
	"country-selection",
	"document-selection",
	"document-front-capture",
	"document-back-capture",
	"selfie-capture",
	"thank-you",
}

// DefaultSettings are the toggles paired with DefaultStepIDs.
func DefaultSettings() domain.FlowSettings {
	return domain.FlowSettings{
		EnableMRZ:     true,
		EnableBarcode: true,
		DocumentTypes: []string{"passport", "id-card", "drivers-license"},
		Countries:     []string{"US", "UK", "CA", "AU", "DE", "FR"},
	}
}

// StaticSource returns the same configuration for every user.
type StaticSource struct {
	ids      []string
	settings domain.FlowSettings
}

func NewStaticSource(ids []string, settings domain.FlowSettings) *StaticSource {
	return &StaticSource{ids: append([]string(nil), ids...), settings: settings}
}

// DefaultStaticSource serves DefaultStepIDs with DefaultSettings.
func DefaultStaticSource() *StaticSource {
	return NewStaticSource(DefaultStepIDs, DefaultSettings())
}

func (s *StaticSource) FlowConfig(_ context.Context, _ string) (Config, error) {
	settings := normalizeSettings(s.settings)
	steps, err := ParseSteps(s.ids, settings)
	if err != nil {
		return Config{}, err
	}
	return Config{Steps: steps, Settings: settings}, nil
}

// HTTPDoer is the subset of *http.Client the HTTP source needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource issues bearer tokens for the configuration service.
type TokenSource interface {
	Token(subject string) (string, error)
}

// HTTPSource fetches GET {base}/flow-config?userId=<id>.
type HTTPSource struct {
	baseURL string
	http    HTTPDoer
	tokens  TokenSource
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

func WithHTTPClient(doer HTTPDoer) HTTPSourceOption {
	return func(s *HTTPSource) {
		if doer != nil {
			s.http = doer
		}
	}
}

func WithTokenSource(tokens TokenSource) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.tokens = tokens
	}
}

func NewHTTPSource(baseURL string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// wireConfig accepts both published shapes: {"steps": [...], "settings": {...}}
// and {"flow": [...]} or {"flow": {"steps": [...], "settings": {...}}}.
type wireConfig struct {
	Flow     json.RawMessage `json:"flow"`
	Steps    []string        `json:"steps"`
	Settings *wireSettings   `json:"settings"`
}

type wireSettings struct {
	EnableMRZ     bool     `json:"enableMRZ"`
	EnableBarcode bool     `json:"enableBarcode"`
	DocumentTypes []string `json:"documentTypes"`
	Countries     []string `json:"countries"`
}

func (s *HTTPSource) FlowConfig(ctx context.Context, userID string) (Config, error) {
	endpoint := s.baseURL + "/flow-config?userId=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Config{}, fmt.Errorf("build flow config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.tokens != nil {
		token, err := s.tokens.Token(userID)
		if err != nil {
			return Config{}, fmt.Errorf("flow config token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Config{}, fmt.Errorf("fetch flow config: %w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Config{}, fmt.Errorf("read flow config: %w: %v", sentinel.ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Config{}, fmt.Errorf("flow config for user %s: %w", userID, sentinel.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Config{}, fmt.Errorf("flow config status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	return DecodeConfig(body)
}

// DecodeConfig parses a configuration document in any published shape.
func DecodeConfig(body []byte) (Config, error) {
	var wire wireConfig
	if err := json.Unmarshal(body, &wire); err != nil {
		return Config{}, fmt.Errorf("decode flow config: %w", err)
	}
	ids := wire.Steps
	settings := wire.Settings
	if len(wire.Flow) > 0 && string(wire.Flow) != "null" {
		var list []string
		if err := json.Unmarshal(wire.Flow, &list); err == nil {
			ids = list
		} else {
			var nested wireConfig
			if err := json.Unmarshal(wire.Flow, &nested); err != nil {
				return Config{}, fmt.Errorf("decode flow config: flow is neither a list nor an object")
			}
			ids = nested.Steps
			if nested.Settings != nil {
				settings = nested.Settings
			}
		}
	}
	if len(ids) == 0 {
		return Config{}, errors.New("flow config lists no steps")
	}

	var fs domain.FlowSettings
	if settings != nil {
		fs = domain.FlowSettings{
			EnableMRZ:     settings.EnableMRZ,
			EnableBarcode: settings.EnableBarcode,
			DocumentTypes: settings.DocumentTypes,
			Countries:     settings.Countries,
		}
	}
	fs = normalizeSettings(fs)
	steps, err := ParseSteps(ids, fs)
	if err != nil {
		return Config{}, err
	}
	return Config{Steps: steps, Settings: fs}, nil
}

func normalizeSettings(s domain.FlowSettings) domain.FlowSettings {
	s.Countries = pstrings.Normalize(s.Countries, strings.ToUpper)
	s.DocumentTypes = pstrings.DedupeFold(s.DocumentTypes)
	return s
}
