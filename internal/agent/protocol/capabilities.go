package protocol

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"idledger/internal/agent/metrics"
	"idledger/internal/agent/models"
	"idledger/internal/wallet"
	dErrors "idledger/pkg/domain-errors"
)

// Issuer decides which claims a link may request and issues them.
type Issuer interface {
	AvailableClaims(ctx context.Context, link *models.Link) ([]models.AvailableClaim, error)
	Issue(ctx context.Context, link *models.Link, req models.RequestClaimBody) (*models.ClaimBody, error)
}

// Prover requests claims and proves them.
type Prover interface {
	// Commit returns the commitment to send in a claim request and remembers its blinding.
	Commit(ctx context.Context, link *models.Link, claim models.AvailableClaim) (json.RawMessage, error)
	Store(ctx context.Context, link *models.Link, claim models.ClaimBody) error
	Prove(ctx context.Context, link *models.Link, request models.ProofRequest) (*models.ClaimProofBody, error)
}

type Verifier interface {
	Verify(ctx context.Context, link *models.Link, request models.ProofRequest, proof models.ClaimProofBody) (bool, error)
}

type offer struct {
	claim  models.AvailableClaim
	values map[string]string
}

type issuerKeys struct {
	public, secret json.RawMessage
}

// Catalog is an Issuer backed by claims offered per link name. A claim nobody offered on a link
// is not available there.
type Catalog struct {
	engine CryptoEngine

	mu     sync.RWMutex
	keys   map[int64]issuerKeys
	offers map[string][]offer
}

func NewCatalog(engine CryptoEngine) *Catalog {
	return &Catalog{engine: engine, keys: make(map[int64]issuerKeys), offers: make(map[string][]offer)}
}

// AddKeys registers the key pair published for a credential definition.
func (c *Catalog) AddKeys(credDefSeqNo int64, public, secret json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[credDefSeqNo] = issuerKeys{public: public, secret: secret}
}

// Offer makes claim available on the link called linkName, issued with values.
func (c *Catalog) Offer(linkName string, claim models.AvailableClaim, values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.offers[linkName]
	for i, o := range list {
		if o.claim.Ref() == claim.Ref() {
			list[i] = offer{claim: claim, values: values}
			return
		}
	}
	c.offers[linkName] = append(list, offer{claim: claim, values: values})
}

func (c *Catalog) AvailableClaims(_ context.Context, link *models.Link) ([]models.AvailableClaim, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.AvailableClaim, 0, len(c.offers[link.Name]))
	for _, o := range c.offers[link.Name] {
		out = append(out, o.claim)
	}
	return out, nil
}

func (c *Catalog) Issue(ctx context.Context, link *models.Link, req models.RequestClaimBody) (*models.ClaimBody, error) {
	ref := models.ClaimRef{Name: req.Name, Version: req.Version}
	c.mu.RLock()
	var (
		found offer
		ok    bool
	)
	for _, o := range c.offers[link.Name] {
		if o.claim.Ref() == ref {
			found, ok = o, true
			break
		}
	}
	keys, haveKeys := c.keys[found.claim.CredDefSeqNo]
	c.mu.RUnlock()

	if !ok {
		return nil, dErrors.New(dErrors.CodeClaimUnavailable, "claim not yet available")
	}
	if !haveKeys {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no issuer keys for credential definition %d", found.claim.CredDefSeqNo)
	}
	material, err := c.engine.IssueCredential(ctx, req.Commitment, found.values, keys.public, keys.secret)
	if err != nil {
		return nil, err
	}
	return &models.ClaimBody{
		Name:         found.claim.Name,
		Version:      found.claim.Version,
		Issuer:       found.claim.Issuer,
		CredDefSeqNo: found.claim.CredDefSeqNo,
		Values:       found.values,
		Material:     material,
	}, nil
}

// WalletProver keeps received claims in the wallet and resolves issuer keys from the ledger.
type WalletProver struct {
	wallet *wallet.Wallet
	engine CryptoEngine
	reader *ledgerReader
	now    func() time.Time

	mu        sync.Mutex
	blindings map[string]json.RawMessage
}

func NewWalletProver(w *wallet.Wallet, engine CryptoEngine, ledger Ledger, m *metrics.Metrics) *WalletProver {
	return &WalletProver{
		wallet:    w,
		engine:    engine,
		reader:    &ledgerReader{wallet: w, ledger: ledger, metrics: m},
		now:       time.Now,
		blindings: make(map[string]json.RawMessage),
	}
}

func blindingKey(nonce, name, version string) string { return nonce + "/" + name + ":" + version }

func (p *WalletProver) Commit(ctx context.Context, link *models.Link, claim models.AvailableClaim) (json.RawMessage, error) {
	ik, err := p.reader.IssuerKey(ctx, claim.Issuer, claim.CredDefSeqNo)
	if err != nil {
		return nil, err
	}
	commitment, blinding, err := p.engine.Commit(ctx, ik.Data)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.blindings[blindingKey(link.Nonce, claim.Name, claim.Version)] = blinding
	p.mu.Unlock()
	return commitment, nil
}

func (p *WalletProver) Store(ctx context.Context, link *models.Link, claim models.ClaimBody) error {
	key := blindingKey(link.Nonce, claim.Name, claim.Version)
	p.mu.Lock()
	blinding, ok := p.blindings[key]
	p.mu.Unlock()
	if !ok {
		return dErrors.Newf(dErrors.CodeProtocol, "claim %s %s was never requested on this link", claim.Name, claim.Version)
	}
	material, err := p.engine.ExtendCredential(ctx, claim.Material, blinding)
	if err != nil {
		return err
	}
	p.wallet.AddCredential(wallet.Credential{
		Name:         claim.Name,
		Version:      claim.Version,
		Issuer:       claim.Issuer,
		CredDefSeqNo: claim.CredDefSeqNo,
		Values:       claim.Values,
		Material:     material,
		IssuedAt:     p.now(),
	})
	p.mu.Lock()
	delete(p.blindings, key)
	p.mu.Unlock()
	return nil
}

// Prove presents every held credential that carries a requested attribute.
func (p *WalletProver) Prove(ctx context.Context, link *models.Link, request models.ProofRequest) (*models.ClaimProofBody, error) {
	wanted := make(map[string]bool)
	for _, a := range request.Attributes {
		wanted[a] = true
	}
	for _, pred := range request.Predicates {
		wanted[pred.Attribute] = true
	}

	var (
		selected []wallet.Credential
		refs     []models.CredentialRef
		revealed = make(map[string]string)
	)
	for _, c := range p.wallet.Credentials() {
		relevant := false
		for name := range c.Values {
			if wanted[name] {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}
		selected = append(selected, c)
		refs = append(refs, models.CredentialRef{Issuer: c.Issuer, CredDefSeqNo: c.CredDefSeqNo})
		for _, a := range request.Attributes {
			if v, ok := c.Values[a]; ok {
				revealed[a] = v
			}
		}
	}
	for _, a := range request.Attributes {
		if _, ok := revealed[a]; !ok {
			return nil, dErrors.Newf(dErrors.CodeClaimUnavailable, "no credential holds %q", a)
		}
	}

	proof, err := p.engine.BuildProof(ctx, request, selected, link.Nonce)
	if err != nil {
		return nil, err
	}
	return &models.ClaimProofBody{
		Name:        request.Name,
		Version:     request.Version,
		Proof:       proof,
		Revealed:    revealed,
		Credentials: refs,
	}, nil
}

// LedgerVerifier resolves the issuer keys a proof references from the ledger before checking it.
type LedgerVerifier struct {
	engine CryptoEngine
	reader *ledgerReader
}

func NewLedgerVerifier(w *wallet.Wallet, engine CryptoEngine, ledger Ledger, m *metrics.Metrics) *LedgerVerifier {
	return &LedgerVerifier{engine: engine, reader: &ledgerReader{wallet: w, ledger: ledger, metrics: m}}
}

func (v *LedgerVerifier) Verify(ctx context.Context, link *models.Link, request models.ProofRequest, proof models.ClaimProofBody) (bool, error) {
	for _, a := range request.Attributes {
		if _, ok := proof.Revealed[a]; !ok {
			return false, nil
		}
	}
	if len(proof.Credentials) == 0 {
		return false, nil
	}

	refs := uniqueRefs(proof.Credentials)
	keys := make([]json.RawMessage, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			ik, err := v.reader.IssuerKey(gctx, ref.Issuer, ref.CredDefSeqNo)
			if err != nil {
				return err
			}
			keys[i] = ik.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return v.engine.VerifyProof(ctx, keys, proof.Proof, link.Nonce, proof.Revealed)
}

func uniqueRefs(refs []models.CredentialRef) []models.CredentialRef {
	seen := make(map[models.CredentialRef]bool, len(refs))
	out := make([]models.CredentialRef, 0, len(refs))
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Issuer != out[j].Issuer {
			return out[i].Issuer < out[j].Issuer
		}
		return out[i].CredDefSeqNo < out[j].CredDefSeqNo
	})
	return out
}
