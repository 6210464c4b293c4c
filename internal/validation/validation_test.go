package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string `json:"username" validate:"required,min=3,username"`
	Password string `json:"password" validate:"required,min=8"`
	Confirm  string `json:"confirm_password" validate:"required,eqfield=Password"`
}

func TestValidator_UsernameRuleAndJSONNames(t *testing.T) {
	v := New()

	err := v.Struct(signup{Username: "bad name!", Password: "short", Confirm: "other"})
	require.Error(t, err)

	messages := Messages(err)
	assert.Equal(t, "username can only contain letters, numbers, and underscores", messages["username"])
	assert.Equal(t, "password must be at least 8 characters long", messages["password"])
	assert.Equal(t, "confirm_password does not match", messages["confirm_password"])
}

func TestValidator_Valid(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(signup{Username: "user_01", Password: "password123", Confirm: "password123"}))
}

func TestMessages_IgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, Messages(assert.AnError))
}

func TestValidator_MaxBytesCountsBytes(t *testing.T) {
	type secret struct {
		Password string `json:"password" validate:"max=72,maxbytes=72"`
	}
	v := New()

	assert.NoError(t, v.Struct(secret{Password: strings.Repeat("a", 72)}))

	// 40 runes, 80 bytes.
	err := v.Struct(secret{Password: strings.Repeat("é", 40)})
	require.Error(t, err)
	assert.Equal(t, "password must be at most 72 bytes long", Messages(err)["password"])
}
