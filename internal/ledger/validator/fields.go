package validator

import (
	"idledger/internal/ledger/models"
)

// commonFields may appear on every transaction type.
var commonFields = []string{
	models.FieldType, models.FieldIdentifier, models.FieldReqID, models.FieldSignature,
	models.FieldTxnID, models.FieldSeqNo, models.FieldTxnTime,
}

// typeFields lists the type-specific fields each transaction type accepts.
var typeFields = map[models.TxnType][]string{
	models.TypeNym:          {models.FieldDest, models.FieldRole, models.FieldVerkey, models.FieldReference},
	models.TypeAttrib:       {models.FieldDest, models.FieldRaw, models.FieldEnc, models.FieldHash},
	models.TypeCredDef:      {models.FieldData},
	models.TypeIssuerKey:    {models.FieldRef, models.FieldData},
	models.TypeGetNym:       {models.FieldDest},
	models.TypeGetAttr:      {models.FieldDest, models.FieldRaw, models.FieldEnc, models.FieldHash},
	models.TypeGetTxns:      {models.FieldDest},
	models.TypeGetCredDef:   {models.FieldDest, models.FieldData},
	models.TypeGetIssuerKey: {models.FieldDest, models.FieldRef},
}

// requiredFields lists what must be present beyond identifier and reqId.
var requiredFields = map[models.TxnType][]string{
	models.TypeNym:          {models.FieldDest},
	models.TypeAttrib:       {},
	models.TypeCredDef:      {models.FieldData},
	models.TypeIssuerKey:    {models.FieldRef, models.FieldData},
	models.TypeGetNym:       {models.FieldDest},
	models.TypeGetAttr:      {models.FieldDest},
	models.TypeGetTxns:      {models.FieldDest},
	models.TypeGetCredDef:   {models.FieldDest, models.FieldData},
	models.TypeGetIssuerKey: {models.FieldDest, models.FieldRef},
}

// presentFields returns the type-specific wire fields set on txn.
func presentFields(txn *models.Txn) map[string]bool {
	return map[string]bool{
		models.FieldDest:      txn.Dest != "",
		models.FieldRole:      txn.Role != nil,
		models.FieldVerkey:    txn.Verkey != "",
		models.FieldReference: txn.Reference != "",
		models.FieldRaw:       txn.Raw != "",
		models.FieldEnc:       txn.Enc != "",
		models.FieldHash:      txn.Hash != "",
		models.FieldData:      len(txn.Data) > 0,
		models.FieldRef:       txn.Ref != 0,
	}
}

func allowedFor(t models.TxnType) map[string]bool {
	allowed := make(map[string]bool, len(commonFields)+4)
	for _, f := range commonFields {
		allowed[f] = true
	}
	for _, f := range typeFields[t] {
		allowed[f] = true
	}
	return allowed
}
