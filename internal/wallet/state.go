package wallet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"idledger/internal/ledger/models"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

func nymKey(dest string) string { return "nym:" + dest }

func attrKey(owner, name string) string { return "attr:" + owner + ":" + name }

func credDefKey(publisher, name, version string) string {
	return "creddef:" + publisher + ":" + name + ":" + version
}

func issuerKeyKey(publisher string, ref int64) string {
	return "issuerkey:" + publisher + ":" + strconv.FormatInt(ref, 10)
}

// AddNym queues a NYM for dest from the default identifier.
func (w *Wallet) AddNym(dest, verkey string, role *models.Role) (int, error) {
	txn := &models.Txn{Type: models.TypeNym, Dest: dest, Verkey: verkey, Role: role}
	n, err := w.submit(txn, nymKey(dest), nil)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.identities[dest]; !ok {
		id := &Identity{Identifier: dest, Verkey: verkey}
		if role != nil {
			r := *role
			id.Role = &r
		}
		w.identities[dest] = id
	}
	return n, nil
}

// AddAttribute queues an ATTRIB. Owner defaults to the default identifier and Dest, when set,
// names the identity the attribute is written on. Encrypted attributes are sealed here under a
// fresh key that never leaves the wallet.
func (w *Wallet) AddAttribute(attr Attribute) (int, error) {
	if attr.Name == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "attribute name is required")
	}
	if attr.Owner == "" {
		attr.Owner = w.DefaultID()
	}
	attr.SeqNo = 0
	body, err := json.Marshal(map[string]string{attr.Name: attr.Value})
	if err != nil {
		return 0, fmt.Errorf("encode attribute: %w", err)
	}

	txn := &models.Txn{Type: models.TypeAttrib, Identifier: attr.Owner, Dest: attr.Dest}
	switch attr.Form {
	case models.FormRaw, "":
		attr.Form = models.FormRaw
		txn.Raw = string(body)
	case models.FormEnc:
		sealed, key, err := seal(string(body))
		if err != nil {
			return 0, err
		}
		attr.Sealed, attr.SecretKey = sealed, key
		txn.Enc = sealed
	case models.FormHash:
		txn.Hash = signing.SHA256Hex(body)
	default:
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "unknown attribute form %q", attr.Form)
	}

	target := attr.Dest
	if target == "" {
		target = attr.Owner
	}
	return w.submit(txn, attrKey(target, attr.Name), &attr)
}

// AddCredentialDefinition queues a CRED_DEF published by the default identifier.
func (w *Wallet) AddCredentialDefinition(cd CredentialDefinition) (int, error) {
	if cd.Publisher == "" {
		cd.Publisher = w.DefaultID()
	}
	cd.SeqNo = 0
	data, err := json.Marshal(models.CredDefData{Name: cd.Name, Version: cd.Version, AttrNames: cd.AttrNames, Type: cd.Type})
	if err != nil {
		return 0, fmt.Errorf("encode cred def: %w", err)
	}
	key := credDefKey(cd.Publisher, cd.Name, cd.Version)
	cd.AttrNames = append([]string(nil), cd.AttrNames...)
	return w.submit(&models.Txn{Type: models.TypeCredDef, Identifier: cd.Publisher, Data: data}, key, &cd)
}

// AddIssuerKey queues an ISSUER_KEY for the credential definition committed at ik.CredDefSeqNo.
func (w *Wallet) AddIssuerKey(ik IssuerKey) (int, error) {
	if ik.Publisher == "" {
		ik.Publisher = w.DefaultID()
	}
	ik.SeqNo = 0
	key := issuerKeyKey(ik.Publisher, ik.CredDefSeqNo)
	txn := &models.Txn{Type: models.TypeIssuerKey, Identifier: ik.Publisher, Ref: ik.CredDefSeqNo, Data: ik.Data}
	ik.Data = append(json.RawMessage(nil), ik.Data...)
	return w.submit(txn, key, &ik)
}

func (w *Wallet) applyNym(p *Prepared, reply *models.Reply) error {
	id, ok := w.identities[p.Txn.Dest]
	if !ok {
		id = &Identity{Identifier: p.Txn.Dest}
		w.identities[p.Txn.Dest] = id
	}
	if p.Txn.Verkey != "" {
		id.Verkey = p.Txn.Verkey
	}
	if p.Txn.Role != nil {
		r := *p.Txn.Role
		id.Role = &r
	}
	if id.SeqNo == 0 {
		id.SeqNo = reply.SeqNo
	}
	return nil
}

func (w *Wallet) applyAttrib(p *Prepared, reply *models.Reply) error {
	attr, ok := p.Entity.(*Attribute)
	if !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "no attribute for %s", p.Correlation)
	}
	committed := *attr
	committed.SeqNo = reply.SeqNo
	w.attributes[p.Correlation] = &committed
	return nil
}

func (w *Wallet) applyCredDef(p *Prepared, reply *models.Reply) error {
	cd, ok := p.Entity.(*CredentialDefinition)
	if !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "no credential definition for %s", p.Correlation)
	}
	committed := *cd
	committed.SeqNo = reply.SeqNo
	w.credDefs[p.Correlation] = &committed
	return nil
}

func (w *Wallet) applyIssuerKey(p *Prepared, reply *models.Reply) error {
	ik, ok := p.Entity.(*IssuerKey)
	if !ok {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "no issuer key for %s", p.Correlation)
	}
	committed := *ik
	committed.SeqNo = reply.SeqNo
	w.issuerKeys[p.Correlation] = &committed
	return nil
}

// LearnIdentity caches an identity read from the ledger.
func (w *Wallet) LearnIdentity(nym *models.NymData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	role := nym.Role
	w.identities[nym.Dest] = &Identity{
		Identifier: nym.Dest,
		Verkey:     nym.Verkey,
		Role:       &role,
		Sponsor:    nym.Sponsor,
		SeqNo:      nym.SeqNo,
	}
}

// LearnCredentialDefinition caches a credential definition read from the ledger.
func (w *Wallet) LearnCredentialDefinition(publisher string, data *models.CredDefData, seqNo int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credDefs[credDefKey(publisher, data.Name, data.Version)] = &CredentialDefinition{
		Publisher: publisher,
		Name:      data.Name,
		Version:   data.Version,
		AttrNames: append([]string(nil), data.AttrNames...),
		Type:      data.Type,
		SeqNo:     seqNo,
	}
}

// LearnIssuerKey caches an issuer key read from the ledger.
func (w *Wallet) LearnIssuerKey(data *models.IssuerKeyData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.issuerKeys[issuerKeyKey(data.Publisher, data.Ref)] = &IssuerKey{
		Publisher:    data.Publisher,
		CredDefSeqNo: data.Ref,
		Data:         append(json.RawMessage(nil), data.Data...),
		SeqNo:        data.SeqNo,
	}
}

// Identity returns a copy of a known identity.
func (w *Wallet) Identity(identifier string) (*Identity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.identities[identifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *id
	return &cp, nil
}

// Attribute returns a copy of the attribute name written on target.
func (w *Wallet) Attribute(target, name string) (*Attribute, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	attr, ok := w.attributes[attrKey(target, name)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *attr
	return &cp, nil
}

// DecryptAttribute opens the sealed form of an encrypted attribute with its stored key.
func (w *Wallet) DecryptAttribute(target, name string) (string, error) {
	attr, err := w.Attribute(target, name)
	if err != nil {
		return "", err
	}
	if attr.Form != models.FormEnc {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "attribute %s is not encrypted", name)
	}
	plain, err := open(attr.Sealed, attr.SecretKey)
	if err != nil {
		return "", err
	}
	var obj map[string]string
	if err := json.Unmarshal([]byte(plain), &obj); err != nil {
		return "", fmt.Errorf("decode attribute: %w", err)
	}
	return obj[name], nil
}

// CredentialDefinition returns a copy of a known credential definition.
func (w *Wallet) CredentialDefinition(publisher, name, version string) (*CredentialDefinition, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cd, ok := w.credDefs[credDefKey(publisher, name, version)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *cd
	cp.AttrNames = append([]string(nil), cd.AttrNames...)
	return &cp, nil
}

// IssuerKey returns a copy of a known issuer key.
func (w *Wallet) IssuerKey(publisher string, credDefSeqNo int64) (*IssuerKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ik, ok := w.issuerKeys[issuerKeyKey(publisher, credDefSeqNo)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *ik
	return &cp, nil
}

func credentialKey(name, version string) string { return name + ":" + version }

// AddCredential stores a received credential, replacing one with the same name and version.
func (w *Wallet) AddCredential(c Credential) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credentials[credentialKey(c.Name, c.Version)] = &c
}

func (w *Wallet) Credential(name, version string) (*Credential, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.credentials[credentialKey(name, version)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Credentials lists held credentials ordered by name then version.
func (w *Wallet) Credentials() []Credential {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Credential, 0, len(w.credentials))
	for _, c := range w.credentials {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}
