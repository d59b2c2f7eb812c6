package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"idledger/internal/ledger/models"
)

// creatable lists, per actor role, the roles it may assign when creating a NYM.
var creatable = map[models.Role][]models.Role{
	models.RoleTrustee: {models.RoleTrustee, models.RoleSteward, models.RoleSponsor, models.RoleUser, models.RoleNone},
	models.RoleSteward: {models.RoleSponsor, models.RoleUser, models.RoleNone},
	models.RoleSponsor: {models.RoleUser, models.RoleNone},
	models.RoleUser:    {},
	models.RoleNone:    {},
}

func TestNymCreationHierarchy(t *testing.T) {
	for _, actor := range models.Roles() {
		for _, declared := range models.Roles() {
			want := contains(creatable[actor], declared)
			for _, isOwner := range []bool{false, true} {
				got, reason := Authorized(models.TypeNym, FieldRole, actor, "", string(declared), isOwner)
				assert.Equal(t, want, got, "actor=%s declared=%s owner=%v", actor, declared, isOwner)
				if !got {
					assert.NotEmpty(t, reason)
				}
			}
		}
	}
}

func TestRoleChangesRequireTrustee(t *testing.T) {
	for _, actor := range models.Roles() {
		for _, from := range []models.Role{models.RoleTrustee, models.RoleSteward, models.RoleSponsor, models.RoleUser} {
			got, _ := Authorized(models.TypeNym, FieldRole, actor, string(from), "", false)
			assert.Equal(t, actor == models.RoleTrustee, got, "demote %s by %s", from, actor)
		}
		got, _ := Authorized(models.TypeNym, FieldRole, actor, string(models.RoleSponsor), string(models.RoleSteward), false)
		assert.Equal(t, actor == models.RoleTrustee, got, "promote sponsor by %s", actor)
	}
}

func TestVerkeyRotationIsOwnerOnly(t *testing.T) {
	for _, actor := range models.Roles() {
		ok, _ := Authorized(models.TypeNym, FieldVerkey, actor, "oldKey", "newKey", true)
		assert.True(t, ok, "owner %s rotates own key", actor)

		ok, reason := Authorized(models.TypeNym, FieldVerkey, actor, "oldKey", "newKey", false)
		assert.False(t, ok, "%s rotates someone else's key", actor)
		assert.Contains(t, reason, "owner")
	}
}

func TestAttribAndCredDef(t *testing.T) {
	t.Run("attrib needs ownership for every role", func(t *testing.T) {
		for _, actor := range models.Roles() {
			ok, _ := Authorized(models.TypeAttrib, Any, actor, "", "", true)
			assert.True(t, ok)
			ok, _ = Authorized(models.TypeAttrib, Any, actor, "", "", false)
			assert.False(t, ok)
		}
	})

	t.Run("cred def by privileged roles only", func(t *testing.T) {
		for _, actor := range models.Roles() {
			ok, _ := Authorized(models.TypeCredDef, Any, actor, "", "", false)
			assert.Equal(t, actor == models.RoleTrustee || actor == models.RoleSteward || actor == models.RoleSponsor, ok)
		}
	})

	t.Run("issuer key by the publishing sponsor", func(t *testing.T) {
		ok, _ := Authorized(models.TypeIssuerKey, Any, models.RoleSponsor, "", "", true)
		assert.True(t, ok)
		ok, _ = Authorized(models.TypeIssuerKey, Any, models.RoleSponsor, "", "", false)
		assert.False(t, ok)
	})
}

func TestMissingKeyIsDenial(t *testing.T) {
	ok, reason := Authorized(models.TxnType("POOL_UPGRADE"), "action", models.RoleTrustee, "", "start", false)
	assert.False(t, ok)
	assert.Contains(t, reason, "no rule")
}

func TestKeysAreEnumerable(t *testing.T) {
	keys := Keys()
	assert.NotEmpty(t, keys)
	for _, k := range keys {
		rule, ok := RuleFor(k)
		assert.True(t, ok)
		assert.NotEmpty(t, rule, "key %s", k)
	}
	_, ok := RuleFor(Key{TxnType: "NOPE"})
	assert.False(t, ok)
}

func TestIsValidRole(t *testing.T) {
	for _, r := range models.Roles() {
		assert.True(t, IsValidRole(r))
	}
	assert.False(t, IsValidRole("ADMIN"))
}

func contains(roles []models.Role, r models.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}
