package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "onboarding/pkg/domain-errors"
)

// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseApplicationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseApplicationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseApplicationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		appID, err := ParseApplicationID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, ApplicationID(valid), appID)
		assert.Equal(t, valid.String(), appID.String())
	})
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE applications;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	valid := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errApp := ParseApplicationID(valid)
		_, errDoc := ParseDocumentID(valid)
		_, errConsent := ParseConsentID(valid)
		_, errCustomer := ParseCustomerID(valid)
		_, errUser := ParseUserID(valid)
		_, errSession := ParseSessionID(valid)

		require.NoError(t, errApp)
		require.NoError(t, errDoc)
		require.NoError(t, errConsent)
		require.NoError(t, errCustomer)
		require.NoError(t, errUser)
		require.NoError(t, errSession)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errApp := ParseApplicationID(input)
			_, errUser := ParseUserID(input)
			_, errSession := ParseSessionID(input)

			require.Error(t, errApp)
			require.Error(t, errUser)
			require.Error(t, errSession)
		})
	}
}

func TestNewIDsAreNeverNil(t *testing.T) {
	assert.False(t, NewApplicationID().IsNil())
	assert.False(t, NewCustomerID().IsNil())
	assert.False(t, NewSessionID().IsNil())
	assert.NotEqual(t, NewApplicationID(), NewApplicationID())
}

func TestIDsMarshalAsUUIDStrings(t *testing.T) {
	appID := NewApplicationID()
	raw, err := json.Marshal(struct {
		ID ApplicationID `json:"id"`
	}{appID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+appID.String()+`"}`, string(raw))

	var decoded struct {
		ID ApplicationID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, appID, decoded.ID)

	err = json.Unmarshal([]byte(`{"id":"nope"}`), &decoded)
	require.Error(t, err)
}
