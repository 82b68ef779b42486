package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/validate"
)

func TestEmail(t *testing.T) {
	v := validate.New()

	tests := []struct {
		email string
		ok    bool
	}{
		{"ada@example.com", true},
		{"  Ada@Example.COM ", true},
		{"", false},
		{"   ", false},
		{"not-an-email", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := v.Email(tt.email)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve credits.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "email", ve.Field)
		})
	}
}

func TestAllowedDomains(t *testing.T) {
	v := validate.New(validate.WithAllowedDomains("@Studio.io", " ", "example.com"))

	assert.NoError(t, v.Email("ada@studio.io"))
	assert.NoError(t, v.Email("bob@EXAMPLE.com"))

	err := v.Email("eve@gmail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is not allowed")

	// Without domains every well formed address passes.
	assert.NoError(t, validate.New(validate.WithAllowedDomains()).Email("eve@gmail.com"))
}

func TestStruct(t *testing.T) {
	type form struct {
		PlanID string `json:"plan_id" validate:"notblank"`
		Email  string `json:"email" validate:"omitempty,email"`
		Width  int    `json:"width" validate:"gte=0,lte=4096"`
	}
	v := validate.New()

	require.NoError(t, v.Struct(form{PlanID: "pro"}))

	err := v.Struct(form{PlanID: " ", Email: "x"})
	require.Error(t, err)
	var multi credits.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.True(t, credits.IsValidation(err))

	err = v.Struct(form{PlanID: "pro", Width: 9000})
	var ve credits.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "width", ve.Field)
	assert.Equal(t, "must be at most 4096", ve.Message)
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", validate.Domain("Ada@Example.com"))
	assert.Equal(t, "", validate.Domain("nobody"))
}
