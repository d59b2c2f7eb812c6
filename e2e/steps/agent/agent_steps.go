package agent

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	agentmodels "idledger/internal/agent/models"
	"idledger/internal/ledger/models"
	strs "idledger/pkg/platform/strings"
)

// TestContext is the part of the scenario world agent steps drive.
type TestContext interface {
	StartAgent(name string, role models.Role, steward string) error
	OfferTranscript(ctx context.Context, issuer, claim, version, link string) error
	Invite(ctx context.Context, inviter, link string, requests []agentmodels.ProofRequest) error
	InvitationNonce() string
	LoadAndAccept(ctx context.Context, invitee string) error
	Link(ctx context.Context, agent, link string) (*agentmodels.Link, error)
	LinkByNonce(ctx context.Context, agent, nonce string) (*agentmodels.Link, error)
	RequestClaim(ctx context.Context, agent, link, claim, version string) error
	SendProof(ctx context.Context, agent, link, name, version string) error
}

// RegisterSteps registers link and claim exchange step definitions. eventually retries an
// assertion until the asynchronous exchange settles.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext, eventually func(func() error) error) {
	steps := &agentSteps{tc: tc, eventually: eventually}

	ctx.Step(`^agent "([^"]*)" onboarded by "([^"]*)" as "([^"]*)"$`, steps.startAgent)
	ctx.Step(`^"([^"]*)" offers claim "([^"]*)" version "([^"]*)" on link "([^"]*)"$`, steps.offer)
	ctx.Step(`^"([^"]*)" invites on link "([^"]*)"$`, steps.invite)
	ctx.Step(`^"([^"]*)" invites on link "([^"]*)" asking for "([^"]*)" version "([^"]*)" with "([^"]*)"$`, steps.inviteWithRequest)
	ctx.Step(`^"([^"]*)" loads the invitation and accepts it$`, steps.loadAndAccept)
	ctx.Step(`^"([^"]*)" requests claim "([^"]*)" version "([^"]*)" on link "([^"]*)"$`, steps.requestClaim)
	ctx.Step(`^"([^"]*)" proves "([^"]*)" version "([^"]*)" on link "([^"]*)"$`, steps.sendProof)

	ctx.Step(`^"([^"]*)" resolves a link by the invitation nonce$`, steps.resolvesByNonce)
	ctx.Step(`^the link "([^"]*)" of "([^"]*)" becomes "([^"]*)"$`, steps.linkBecomes)
	ctx.Step(`^the link "([^"]*)" of "([^"]*)" lists (\d+) available claims?$`, steps.availableClaims)
	ctx.Step(`^the link "([^"]*)" of "([^"]*)" holds (\d+) received claims?$`, steps.receivedClaims)
	ctx.Step(`^"([^"]*)" is told "([^"]*)" on link "([^"]*)"$`, steps.toldError)
	ctx.Step(`^the proof request "([^"]*)" on link "([^"]*)" of "([^"]*)" is fulfilled$`, steps.proofFulfilled)
}

type agentSteps struct {
	tc         TestContext
	eventually func(func() error) error
}

func (s *agentSteps) startAgent(name, steward, role string) error {
	return s.tc.StartAgent(name, models.Role(role), steward)
}

func (s *agentSteps) offer(ctx context.Context, issuer, claim, version, link string) error {
	return s.tc.OfferTranscript(ctx, issuer, claim, version, link)
}

func (s *agentSteps) invite(ctx context.Context, inviter, link string) error {
	return s.tc.Invite(ctx, inviter, link, nil)
}

func (s *agentSteps) inviteWithRequest(ctx context.Context, inviter, link, name, version, attrs string) error {
	request := agentmodels.ProofRequest{Name: name, Version: version, Attributes: strs.SplitList(attrs, ",")}
	return s.tc.Invite(ctx, inviter, link, []agentmodels.ProofRequest{request})
}

func (s *agentSteps) loadAndAccept(ctx context.Context, invitee string) error {
	return s.tc.LoadAndAccept(ctx, invitee)
}

func (s *agentSteps) requestClaim(ctx context.Context, agent, claim, version, link string) error {
	return s.tc.RequestClaim(ctx, agent, link, claim, version)
}

func (s *agentSteps) sendProof(ctx context.Context, agent, name, version, link string) error {
	return s.tc.SendProof(ctx, agent, link, name, version)
}

func (s *agentSteps) resolvesByNonce(ctx context.Context, agent string) error {
	nonce := s.tc.InvitationNonce()
	return s.eventually(func() error {
		_, err := s.tc.LinkByNonce(ctx, agent, nonce)
		return err
	})
}

func (s *agentSteps) link(ctx context.Context, agent, link string, check func(*agentmodels.Link) error) error {
	return s.eventually(func() error {
		l, err := s.tc.Link(ctx, agent, link)
		if err != nil {
			return err
		}
		return check(l)
	})
}

func (s *agentSteps) linkBecomes(ctx context.Context, link, agent, status string) error {
	return s.link(ctx, agent, link, func(l *agentmodels.Link) error {
		if string(l.Status) != status {
			return fmt.Errorf("link %s of %s is %s, want %s", link, agent, l.Status, status)
		}
		return nil
	})
}

func (s *agentSteps) availableClaims(ctx context.Context, link, agent string, n int) error {
	return s.link(ctx, agent, link, func(l *agentmodels.Link) error {
		if len(l.AvailableClaims) != n {
			return fmt.Errorf("link %s of %s lists %d available claims, want %d", link, agent, len(l.AvailableClaims), n)
		}
		return nil
	})
}

func (s *agentSteps) receivedClaims(ctx context.Context, link, agent string, n int) error {
	return s.link(ctx, agent, link, func(l *agentmodels.Link) error {
		if len(l.ReceivedClaims) != n {
			return fmt.Errorf("link %s of %s holds %d received claims, want %d", link, agent, len(l.ReceivedClaims), n)
		}
		return nil
	})
}

func (s *agentSteps) toldError(ctx context.Context, agent, reason, link string) error {
	return s.link(ctx, agent, link, func(l *agentmodels.Link) error {
		if l.LastError == nil {
			return fmt.Errorf("link %s of %s has no error", link, agent)
		}
		if l.LastError.Reason != reason {
			return fmt.Errorf("link %s of %s was told %q, want %q", link, agent, l.LastError.Reason, reason)
		}
		return nil
	})
}

func (s *agentSteps) proofFulfilled(ctx context.Context, name, link, agent string) error {
	return s.link(ctx, agent, link, func(l *agentmodels.Link) error {
		for _, pr := range l.ProofRequests {
			if pr.Name == name {
				if !pr.Fulfilled {
					return fmt.Errorf("proof request %s on %s of %s is not fulfilled", name, link, agent)
				}
				return nil
			}
		}
		return fmt.Errorf("link %s of %s has no proof request %s", link, agent, name)
	})
}
