// Package validator checks proposed transactions against the wire vocabulary, the current
// identity graph and the authorization table. The same checks run before ordering and again
// once the transaction is ordered, since the graph may have moved in between.
package validator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"idledger/internal/ledger/models"
	"idledger/internal/ledger/policy"
	"idledger/pkg/domain"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

// GraphReader is the read access the validator needs. Lookups return sentinel.ErrNotFound
// when nothing matches.
type GraphReader interface {
	GetNym(ctx context.Context, nym string) (*models.Nym, error)
	GetCredentialDefinition(ctx context.Context, publisher, name, version string) (*models.CredentialDefinition, error)
	GetCredentialDefinitionBySeqNo(ctx context.Context, seqNo int64) (*models.CredentialDefinition, error)
	GetIssuerKey(ctx context.Context, publisher string, credDefSeqNo int64) (*models.IssuerKey, error)
}

type Validator struct {
	graph  GraphReader
	logger *slog.Logger
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func New(graph GraphReader, opts ...Option) *Validator {
	v := &Validator{graph: graph, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every check on a write before it is handed to ordering.
func (v *Validator) Validate(ctx context.Context, txn *models.Txn) error {
	if err := v.ValidateShape(txn); err != nil {
		return err
	}
	return v.checkWrite(ctx, txn)
}

// ValidateShape runs only the stateless checks on a write. It does not read the graph, so it
// also holds for a request that is already committed.
func (v *Validator) ValidateShape(txn *models.Txn) error {
	if err := v.checkShape(txn); err != nil {
		return err
	}
	if txn.Type.IsReadOnly() {
		return dErrors.Newf(dErrors.CodeBadRequest, "%s is a query, not a write", txn.Type).WithFields(models.FieldType)
	}
	return nil
}

// Revalidate reruns the write checks after ordering. A create that lost a race against an
// earlier ordered transaction is rejected with an "already exists" conflict.
func (v *Validator) Revalidate(ctx context.Context, txn *models.Txn) error {
	err := v.Validate(ctx, txn)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		v.logger.WarnContext(ctx, "transaction invalidated after ordering",
			"txn_id", txn.TxnID,
			"identifier", txn.Identifier,
			"req_id", txn.ReqID,
			"reason", dErrors.MessageOf(err),
		)
	}
	return err
}

// ValidateQuery runs the syntactic checks a read-only request must pass.
func (v *Validator) ValidateQuery(_ context.Context, txn *models.Txn) error {
	if err := v.checkShape(txn); err != nil {
		return err
	}
	if !txn.Type.IsReadOnly() {
		return dErrors.Newf(dErrors.CodeBadRequest, "%s is a write, not a query", txn.Type).WithFields(models.FieldType)
	}
	switch txn.Type {
	case models.TypeGetAttr:
		if _, _, n := txn.Payload(); n != 1 {
			return dErrors.New(dErrors.CodeValidation, "exactly one of raw, enc, hash is required").
				WithFields(models.FieldRaw, models.FieldEnc, models.FieldHash)
		}
	case models.TypeGetCredDef:
		data, err := txn.CredDef()
		if err != nil || data.Name == "" || data.Version == "" {
			return dErrors.New(dErrors.CodeValidation, "data must carry name and version").WithFields(models.FieldData)
		}
	}
	return nil
}

// checkShape covers recognized fields, required fields and the declared type.
func (v *Validator) checkShape(txn *models.Txn) error {
	if unknown := txn.UnknownFields(); len(unknown) > 0 {
		return dErrors.Newf(dErrors.CodeBadRequest, "unrecognized fields %v", unknown).WithFields(unknown...)
	}
	var missing []string
	if txn.Type == "" {
		missing = append(missing, models.FieldType)
	}
	if txn.Identifier == "" {
		missing = append(missing, models.FieldIdentifier)
	}
	if txn.ReqID == 0 {
		missing = append(missing, models.FieldReqID)
	}
	present := presentFields(txn)
	for _, f := range requiredFields[txn.Type] {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeBadRequest, "missing required fields %v", missing).WithFields(missing...)
	}
	if !txn.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "invalid transaction type %q", txn.Type).WithFields(models.FieldType)
	}
	allowed := allowedFor(txn.Type)
	var extra []string
	for f, set := range present {
		if set && !allowed[f] {
			extra = append(extra, f)
		}
	}
	if len(extra) > 0 {
		return dErrors.Newf(dErrors.CodeBadRequest, "fields not accepted on %s", txn.Type).WithFields(extra...)
	}
	if _, err := domain.ParseIdentifier(txn.Identifier); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "identifier is malformed").WithFields(models.FieldIdentifier)
	}
	return nil
}

func (v *Validator) checkWrite(ctx context.Context, txn *models.Txn) error {
	actor, err := v.graph.GetNym(ctx, txn.Identifier)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeUnauthorized, "identifier %s is not on the ledger", txn.Identifier).
			WithFields(models.FieldIdentifier)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load actor")
	}

	switch txn.Type {
	case models.TypeNym:
		return v.checkNym(ctx, txn, actor)
	case models.TypeAttrib:
		return v.checkAttrib(ctx, txn, actor)
	case models.TypeCredDef:
		return v.checkCredDef(ctx, txn, actor)
	case models.TypeIssuerKey:
		return v.checkIssuerKey(ctx, txn, actor)
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "invalid transaction type %q", txn.Type).WithFields(models.FieldType)
	}
}

func (v *Validator) checkNym(ctx context.Context, txn *models.Txn, actor *models.Nym) error {
	if _, err := domain.ParseIdentifier(txn.Dest); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "dest is malformed").WithFields(models.FieldDest)
	}
	declared := models.RoleNone
	if txn.Role != nil {
		declared = *txn.Role
		if !policy.IsValidRole(declared) {
			return dErrors.Newf(dErrors.CodeValidation, "invalid role %q", declared).WithFields(models.FieldRole)
		}
	}
	if txn.Verkey != "" {
		if _, err := signing.DecodeVerkey(txn.Verkey); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "verkey is malformed").WithFields(models.FieldVerkey)
		}
	}
	if txn.Reference != "" {
		if err := v.mustExist(ctx, txn.Reference, models.FieldReference); err != nil {
			return err
		}
	}

	existing, err := v.graph.GetNym(ctx, txn.Dest)
	if errors.Is(err, sentinel.ErrNotFound) {
		if ok, reason := policy.Authorized(models.TypeNym, policy.FieldRole, actor.Role, string(models.RoleNone), string(declared), false); !ok {
			return dErrors.New(dErrors.CodeUnauthorized, reason).WithFields(models.FieldRole)
		}
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load target")
	}
	return v.checkNymUpdate(txn, actor, existing)
}

// checkNymUpdate handles a NYM whose target exists: only the owner or a TRUSTEE may touch it,
// and the change must rotate the verkey or change the role.
func (v *Validator) checkNymUpdate(txn *models.Txn, actor, existing *models.Nym) error {
	isOwner := actor.Nym == existing.Nym
	if !isOwner && actor.Role != models.RoleTrustee {
		return dErrors.Newf(dErrors.CodeConflict, "nym %s already exists", txn.Dest).WithFields(models.FieldDest)
	}
	verkeyChange := txn.Verkey != "" && txn.Verkey != existing.Verkey
	roleChange := txn.Role != nil && *txn.Role != existing.Role
	if !verkeyChange && !roleChange {
		return dErrors.Newf(dErrors.CodeConflict, "nym %s already exists", txn.Dest).WithFields(models.FieldDest)
	}
	if txn.Reference != "" && txn.Reference != existing.Reference {
		return dErrors.New(dErrors.CodeValidation, "reference cannot change").WithFields(models.FieldReference)
	}
	if verkeyChange {
		if ok, reason := policy.Authorized(models.TypeNym, policy.FieldVerkey, actor.Role, existing.Verkey, txn.Verkey, isOwner); !ok {
			return dErrors.New(dErrors.CodeUnauthorized, reason).WithFields(models.FieldVerkey)
		}
	}
	if roleChange {
		if ok, reason := policy.Authorized(models.TypeNym, policy.FieldRole, actor.Role, string(existing.Role), string(*txn.Role), isOwner); !ok {
			return dErrors.New(dErrors.CodeUnauthorized, reason).WithFields(models.FieldRole)
		}
	}
	return nil
}

func (v *Validator) checkAttrib(ctx context.Context, txn *models.Txn, actor *models.Nym) error {
	form, value, n := txn.Payload()
	if n != 1 {
		return dErrors.New(dErrors.CodeValidation, "exactly one of raw, enc, hash is required").
			WithFields(models.FieldRaw, models.FieldEnc, models.FieldHash)
	}
	switch form {
	case models.FormRaw:
		if models.RawAttributeName(value) == "" {
			return dErrors.New(dErrors.CodeValidation, "raw must be a JSON object with a single key").WithFields(models.FieldRaw)
		}
	case models.FormHash:
		if b, err := hex.DecodeString(value); err != nil || len(b) != 32 {
			return dErrors.New(dErrors.CodeValidation, "hash must be a hex SHA-256 digest").WithFields(models.FieldHash)
		}
	}

	target := txn.Target()
	owner := actor
	if txn.Dest != "" && txn.Dest != actor.Nym {
		t, err := v.graph.GetNym(ctx, txn.Dest)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeValidation, "target %s does not exist", target).WithFields(models.FieldDest)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load attribute target")
		}
		owner = t
	}
	isOwner := owner.Nym == actor.Nym || owner.Sponsor == actor.Nym
	if ok, reason := policy.Authorized(models.TypeAttrib, policy.Any, actor.Role, policy.Any, policy.Any, isOwner); !ok {
		return dErrors.New(dErrors.CodeUnauthorized, reason).WithFields(models.FieldDest)
	}
	return nil
}

func (v *Validator) checkCredDef(ctx context.Context, txn *models.Txn, actor *models.Nym) error {
	data, err := txn.CredDef()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "data is not a credential definition").WithFields(models.FieldData)
	}
	var missing []string
	if data.Name == "" {
		missing = append(missing, "data.name")
	}
	if data.Version == "" {
		missing = append(missing, "data.version")
	}
	if len(data.AttrNames) == 0 {
		missing = append(missing, "data.attrNames")
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "credential definition is incomplete: %v", missing).WithFields(missing...)
	}

	_, err = v.graph.GetCredentialDefinition(ctx, actor.Nym, data.Name, data.Version)
	switch {
	case err == nil:
		return dErrors.Newf(dErrors.CodeConflict, "credential definition %s %s already exists", data.Name, data.Version).
			WithFields(models.FieldData)
	case !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "load credential definition")
	}
	if ok, reason := policy.Authorized(models.TypeCredDef, policy.Any, actor.Role, policy.Any, policy.Any, false); !ok {
		return dErrors.New(dErrors.CodeUnauthorized, reason).WithFields(models.FieldIdentifier)
	}
	return nil
}

func (v *Validator) checkIssuerKey(ctx context.Context, txn *models.Txn, actor *models.Nym) error {
	if !json.Valid(txn.Data) {
		return dErrors.New(dErrors.CodeValidation, "data must be JSON").WithFields(models.FieldData)
	}
	cd, err := v.graph.GetCredentialDefinitionBySeqNo(ctx, txn.Ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeValidation, "no credential definition at seqNo %d", txn.Ref).WithFields(models.FieldRef)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load credential definition")
	}
	_, err = v.graph.GetIssuerKey(ctx, actor.Nym, txn.Ref)
	switch {
	case err == nil:
		return dErrors.Newf(dErrors.CodeConflict, "issuer key for %d already exists", txn.Ref).WithFields(models.FieldRef)
	case !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "load issuer key")
	}
	if ok, reason := policy.Authorized(models.TypeIssuerKey, policy.Any, actor.Role, policy.Any, policy.Any, cd.Publisher == actor.Nym); !ok {
		return dErrors.New(dErrors.CodeUnauthorized, reason).WithFields(models.FieldRef)
	}
	return nil
}

func (v *Validator) mustExist(ctx context.Context, nym, field string) error {
	_, err := v.graph.GetNym(ctx, nym)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeValidation, "%s %s does not exist", field, nym).WithFields(field)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("load %s", field))
	}
	return nil
}
