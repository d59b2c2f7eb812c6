// Package policy is the static authorization table every node consults before and after ordering.
//
// A rule is keyed by (transaction type, mutated field, old value, new value) and lists the
// actor roles allowed to make that change. A role marked owner-only is allowed only when the
// actor is also the subject of the transaction. A missing key is a denial, never a panic.
package policy

import (
	"fmt"
	"sort"

	"idledger/internal/ledger/models"
)

// Any matches every field or value in a key.
const Any = "*"

// Field names used in keys.
const (
	FieldRole   = models.FieldRole
	FieldVerkey = models.FieldVerkey
)

// Key identifies a class of state change.
type Key struct {
	TxnType models.TxnType
	Field   string
	Old     string
	New     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s_%s", k.TxnType, k.Field, k.Old, k.New)
}

// Rule maps an allowed role to whether it must also own the subject.
type Rule map[models.Role]bool

var (
	trustee  = models.RoleTrustee
	steward  = models.RoleSteward
	sponsor  = models.RoleSponsor
	user     = models.RoleUser
	none     = models.RoleNone
	allRoles = []models.Role{trustee, steward, sponsor, user, none}
)

func ownerOnly(roles ...models.Role) Rule {
	r := make(Rule, len(roles))
	for _, role := range roles {
		r[role] = true
	}
	return r
}

func anyOf(roles ...models.Role) Rule {
	r := make(Rule, len(roles))
	for _, role := range roles {
		r[role] = false
	}
	return r
}

func nymRole(old, new models.Role) Key {
	return Key{TxnType: models.TypeNym, Field: FieldRole, Old: string(old), New: string(new)}
}

// table is the complete authorization map. Creating a NYM is the "" -> role transition.
var table = map[Key]Rule{
	nymRole(none, trustee): anyOf(trustee),
	nymRole(none, steward): anyOf(trustee),
	nymRole(none, sponsor): anyOf(trustee, steward),
	nymRole(none, user):    anyOf(trustee, steward, sponsor),
	nymRole(none, none):    anyOf(trustee, steward, sponsor),

	nymRole(trustee, none): anyOf(trustee),
	nymRole(steward, none): anyOf(trustee),
	nymRole(sponsor, none): anyOf(trustee),
	nymRole(user, none):    anyOf(trustee),

	{TxnType: models.TypeNym, Field: FieldRole, Old: Any, New: Any}: anyOf(trustee),

	{TxnType: models.TypeNym, Field: FieldVerkey, Old: Any, New: Any}: ownerOnly(allRoles...),

	{TxnType: models.TypeAttrib, Field: Any, Old: Any, New: Any}: ownerOnly(allRoles...),

	{TxnType: models.TypeCredDef, Field: Any, Old: Any, New: Any}: anyOf(trustee, steward, sponsor),

	{TxnType: models.TypeIssuerKey, Field: Any, Old: Any, New: Any}: ownerOnly(trustee, steward, sponsor),
}

// lookup resolves the most specific rule for a change.
func lookup(txnType models.TxnType, field, oldValue, newValue string) (Key, Rule, bool) {
	candidates := []Key{
		{TxnType: txnType, Field: field, Old: oldValue, New: newValue},
		{TxnType: txnType, Field: field, Old: oldValue, New: Any},
		{TxnType: txnType, Field: field, Old: Any, New: newValue},
		{TxnType: txnType, Field: field, Old: Any, New: Any},
		{TxnType: txnType, Field: Any, Old: Any, New: Any},
	}
	for _, k := range candidates {
		if r, ok := table[k]; ok {
			return k, r, true
		}
	}
	return Key{}, nil, false
}

// Authorized decides whether actorRole may change field from oldValue to newValue on a
// transaction of txnType. isOwner reports whether the actor is the subject of the change.
func Authorized(txnType models.TxnType, field string, actorRole models.Role, oldValue, newValue string, isOwner bool) (bool, string) {
	key, rule, ok := lookup(txnType, field, oldValue, newValue)
	if !ok {
		return false, fmt.Sprintf("no rule permits %s %s change from %q to %q", txnType, field, oldValue, newValue)
	}
	mustOwn, allowed := rule[actorRole]
	if !allowed {
		return false, fmt.Sprintf("%s cannot make %s change (%s)", actorRole, txnType, key)
	}
	if mustOwn && !isOwner {
		return false, fmt.Sprintf("only the owner can make %s change (%s)", txnType, key)
	}
	return true, ""
}

// IsValidRole is the role legality predicate, applied before authorization.
func IsValidRole(r models.Role) bool {
	return r.IsValid()
}

// Keys enumerates every key in the table in a stable order.
func Keys() []Key {
	keys := make([]Key, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// RuleFor returns a copy of the rule stored under key.
func RuleFor(key Key) (Rule, bool) {
	r, ok := table[key]
	if !ok {
		return nil, false
	}
	cp := make(Rule, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp, true
}
