// Package common holds the shared HTTP client state and generic steps.
package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the per-scenario state shared by every step package.
type TestContext struct {
	BaseURL string
	Token   string
	client  *http.Client

	LastStatus     int
	LastBody       []byte
	VerificationID string
}

func NewTestContext(baseURL, token string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears everything a previous scenario left behind.
func (tc *TestContext) Reset() {
	tc.LastStatus = 0
	tc.LastBody = nil
	tc.VerificationID = ""
}

// Do sends a request with an optional JSON body and records the response.
func (tc *TestContext) Do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.Token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.LastStatus = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

// JSON decodes the last response body as an object.
func (tc *TestContext) JSON() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(tc.LastBody, &out); err != nil {
		return nil, fmt.Errorf("decode response %q: %w", tc.LastBody, err)
	}
	return out, nil
}

func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^I GET "([^"]*)"$`, func(path string) error {
		return tc.Do(http.MethodGet, path, nil)
	})
	ctx.Step(`^the response status should be (\d+)$`, func(status int) error {
		if tc.LastStatus != status {
			return fmt.Errorf("expected status %d, got %d: %s", status, tc.LastStatus, tc.LastBody)
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, func(field, want string) error {
		body, err := tc.JSON()
		if err != nil {
			return err
		}
		if got := fmt.Sprint(body[field]); got != want {
			return fmt.Errorf("expected %s=%q, got %q", field, want, got)
		}
		return nil
	})
	ctx.Step(`^the error code should be "([^"]*)"$`, func(code string) error {
		body, err := tc.JSON()
		if err != nil {
			return err
		}
		if body["error"] != code {
			return fmt.Errorf("expected error %q, got %v", code, body["error"])
		}
		return nil
	})
}
