package httputil

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPassword(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Passw0rd!", true},
		{"Aa1@aaaa", true},
		{"password1!", false},
		{"PASSWORD1!", false},
		{"Password!", false},
		{"Password1", false},
		{"Pass word1!", false},
		{"Password1#", false},
		{"Pässword1!", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPassword(tt.password))
		})
	}
}

func TestNewValidator_UsesJSONNames(t *testing.T) {
	type request struct {
		Password string `json:"password" validate:"required,min=8,max=32,password"`
	}

	err := NewValidator().Struct(request{Password: "weakpassword"})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "request.password", verrs[0].Namespace())
	assert.Equal(t, "password", verrs[0].Tag())
}
