package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserContext(t *testing.T) {
	t.Run("SetUserContext and getters", func(t *testing.T) {
		ctx := SetUserContext(context.Background(), 100, "user@example.com", RoleAdmin)

		id, ok := GetUserIDFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, uint(100), id)
		assert.Equal(t, "user@example.com", GetUserEmailFromContext(ctx))
		assert.Equal(t, RoleAdmin, GetUserRoleFromContext(ctx))
		assert.True(t, IsAdmin(ctx))
	})

	t.Run("Empty context", func(t *testing.T) {
		_, ok := GetUserIDFromContext(context.Background())
		assert.False(t, ok)
		assert.False(t, IsAdmin(context.Background()))
	})

	t.Run("Zero user id is not authenticated", func(t *testing.T) {
		_, ok := GetUserIDFromContext(SetUserContext(context.Background(), 0, "", RoleCustomer))
		assert.False(t, ok)
	})
}

func TestToUint(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  uint
		expectErr bool
	}{
		{"Valid number", "123", 123, false},
		{"Zero", "0", 0, false},
		{"Negative number", "-1", 0, true},
		{"Non-numeric string", "abc", 0, true},
		{"Empty string", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ToUint(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPtrHelpers(t *testing.T) {
	s := StrPtr("x")
	assert.Equal(t, "x", *s)
	assert.Equal(t, "x", PtrString(s))
	assert.Equal(t, "", PtrString(nil))
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONError(w, "error message", http.StatusBadRequest)

	resp := w.Result()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "error message", body["error"])
}

func TestGenerateOrderNumber(t *testing.T) {
	t.Run("Format", func(t *testing.T) {
		num := GenerateOrderNumber()

		parts := strings.Split(num, "-")
		if assert.Len(t, parts, 5) {
			assert.Equal(t, "ORD", parts[0])
			assert.Len(t, parts[1], 8)
			assert.Len(t, parts[2], 6)
			assert.Len(t, parts[3], 3)
			assert.Len(t, parts[4], 4)
		}
	})

	t.Run("Uniqueness", func(t *testing.T) {
		assert.NotEqual(t, GenerateOrderNumber(), GenerateOrderNumber())
	})
}
