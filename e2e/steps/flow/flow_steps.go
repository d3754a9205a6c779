// Package flow holds the verification flow step definitions.
package flow

import (
	"fmt"
	"net/http"

	"github.com/cucumber/godog"

	"kycflow/e2e/steps/common"
)

func RegisterSteps(ctx *godog.ScenarioContext, tc *common.TestContext) {
	s := &steps{tc: tc}
	ctx.Step(`^a verification flow started for user "([^"]*)"$`, s.startFlow)
	ctx.Step(`^I start a verification flow for user "([^"]*)"$`, s.startFlow)
	ctx.Step(`^I select country "([^"]*)"$`, s.selectCountry)
	ctx.Step(`^I select document type "([^"]*)"$`, s.selectDocumentType)
	ctx.Step(`^I restart the flow$`, s.restart)
	ctx.Step(`^I close the flow$`, s.closeFlow)
	ctx.Step(`^I fetch the flow$`, s.fetch)
	ctx.Step(`^I request the report$`, s.report)
	ctx.Step(`^the current step should be "([^"]*)"$`, s.currentStepIs)
	ctx.Step(`^the flow should have a new verification id$`, s.newVerificationID)
}

type steps struct {
	tc       *common.TestContext
	previous string
}

func (s *steps) path(suffix string) string {
	return "/v1/flows/" + s.tc.VerificationID + suffix
}

func (s *steps) startFlow(userID string) error {
	if err := s.tc.Do(http.MethodPost, "/v1/flows", map[string]string{"user_id": userID}); err != nil {
		return err
	}
	if s.tc.LastStatus != http.StatusCreated {
		return fmt.Errorf("start flow: status %d: %s", s.tc.LastStatus, s.tc.LastBody)
	}
	return s.remember()
}

func (s *steps) remember() error {
	body, err := s.tc.JSON()
	if err != nil {
		return err
	}
	id, _ := body["verification_id"].(string)
	if id == "" {
		return fmt.Errorf("response has no verification_id: %s", s.tc.LastBody)
	}
	s.previous, s.tc.VerificationID = s.tc.VerificationID, id
	return nil
}

func (s *steps) selectCountry(code string) error {
	return s.tc.Do(http.MethodPost, s.path("/country"), map[string]string{"country_code": code})
}

func (s *steps) selectDocumentType(value string) error {
	return s.tc.Do(http.MethodPost, s.path("/document-type"), map[string]string{"document_type": value})
}

func (s *steps) restart() error {
	if err := s.tc.Do(http.MethodPost, s.path("/restart"), nil); err != nil {
		return err
	}
	if s.tc.LastStatus != http.StatusCreated {
		return fmt.Errorf("restart: status %d: %s", s.tc.LastStatus, s.tc.LastBody)
	}
	return s.remember()
}

func (s *steps) closeFlow() error {
	return s.tc.Do(http.MethodDelete, s.path(""), nil)
}

func (s *steps) fetch() error {
	return s.tc.Do(http.MethodGet, s.path(""), nil)
}

func (s *steps) report() error {
	return s.tc.Do(http.MethodGet, s.path("/report"), nil)
}

func (s *steps) currentStepIs(step string) error {
	if err := s.fetch(); err != nil {
		return err
	}
	body, err := s.tc.JSON()
	if err != nil {
		return err
	}
	if body["current_step"] != step {
		return fmt.Errorf("expected current step %q, got %v", step, body["current_step"])
	}
	return nil
}

func (s *steps) newVerificationID() error {
	if s.previous == "" || s.previous == s.tc.VerificationID {
		return fmt.Errorf("verification id did not change (%q)", s.tc.VerificationID)
	}
	return nil
}
