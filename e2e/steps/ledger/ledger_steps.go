package ledger

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"idledger/internal/ledger/models"
	dErrors "idledger/pkg/domain-errors"
)

// TestContext is the part of the scenario world ledger steps drive.
type TestContext interface {
	StartLedger(trustee, steward string) error
	AddIdentity(actor, target string, role models.Role) error
	LastWriteError() error
	Nym(ctx context.Context, reader, name string) (*models.NymData, error)
	NameOf(identifier string) string
	SponsorOf(ctx context.Context, name string) (string, error)
	OnLedger(ctx context.Context, name string) (bool, error)
}

// RegisterSteps registers identity graph step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ledgerSteps{tc: tc}

	ctx.Step(`^a ledger whose genesis has trustee "([^"]*)" and steward "([^"]*)"$`, steps.startLedger)
	ctx.Step(`^"([^"]*)" adds identity "([^"]*)" with role "([^"]*)"$`, steps.addIdentity)
	ctx.Step(`^"([^"]*)" adds identity "([^"]*)" without a role$`, steps.addPlainIdentity)

	ctx.Step(`^the write is accepted$`, steps.writeAccepted)
	ctx.Step(`^the write is rejected with code "([^"]*)"$`, steps.writeRejected)
	ctx.Step(`^"([^"]*)" reads role "([^"]*)" for "([^"]*)"$`, steps.readsRole)
	ctx.Step(`^the sponsor of "([^"]*)" is "([^"]*)"$`, steps.sponsorIs)
	ctx.Step(`^"([^"]*)" is not on the ledger$`, steps.notOnLedger)
}

type ledgerSteps struct {
	tc TestContext
}

func (s *ledgerSteps) startLedger(trustee, steward string) error {
	return s.tc.StartLedger(trustee, steward)
}

func (s *ledgerSteps) addIdentity(actor, target, role string) error {
	r := models.Role(role)
	if !r.IsValid() {
		return fmt.Errorf("unknown role %q", role)
	}
	return s.tc.AddIdentity(actor, target, r)
}

func (s *ledgerSteps) addPlainIdentity(actor, target string) error {
	return s.tc.AddIdentity(actor, target, models.RoleNone)
}

func (s *ledgerSteps) writeAccepted() error {
	if err := s.tc.LastWriteError(); err != nil {
		return fmt.Errorf("expected the write to be accepted, got %w", err)
	}
	return nil
}

func (s *ledgerSteps) writeRejected(code string) error {
	err := s.tc.LastWriteError()
	if err == nil {
		return fmt.Errorf("expected a %s rejection, the write was accepted", code)
	}
	if got := dErrors.CodeOf(err); string(got) != code {
		return fmt.Errorf("expected code %s, got %s (%v)", code, got, err)
	}
	return nil
}

func (s *ledgerSteps) readsRole(ctx context.Context, reader, role, name string) error {
	nym, err := s.tc.Nym(ctx, reader, name)
	if err != nil {
		return err
	}
	if string(nym.Role) != role {
		return fmt.Errorf("expected %s to have role %q, got %q", name, role, nym.Role)
	}
	return nil
}

func (s *ledgerSteps) sponsorIs(ctx context.Context, name, sponsor string) error {
	got, err := s.tc.SponsorOf(ctx, name)
	if err != nil {
		return err
	}
	if got != sponsor {
		return fmt.Errorf("expected %s to be sponsored by %s, got %s", name, sponsor, got)
	}
	return nil
}

func (s *ledgerSteps) notOnLedger(ctx context.Context, name string) error {
	ok, err := s.tc.OnLedger(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s should not be on the ledger", name)
	}
	return nil
}
