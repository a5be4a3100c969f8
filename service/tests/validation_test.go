package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/service"
)

func TestValidateProfileImage(t *testing.T) {
	tests := []struct {
		name     string
		dataURL  string
		wantSize int
		wantErr  string
	}{
		{"png", "data:image/png;base64,AAAA", 3, ""},
		{"jpg alias", "data:image/jpg;base64,AAAAAA==", 6, ""},
		{"webp", "data:image/webp;base64,AAAAA", 4, ""},
		{"unsupported type", "data:image/bmp;base64,AAAA", 0, "unsupported image format"},
		{"not a data url", "https://example.com/a.png", 0, "unsupported image format"},
		{"empty payload", "data:image/png;base64,", 0, "invalid base64"},
		{"bad characters", "data:image/png;base64,AA$A", 0, "invalid base64"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			size, err := service.ValidateProfileImage(tc.dataURL)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				assert.Equal(t, tc.wantSize, size)
				return
			}
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("too large", func(t *testing.T) {
		payload := strings.Repeat("A", service.MaxProfileImageBytes/3*4+8)
		size, err := service.ValidateProfileImage("data:image/png;base64," + payload)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Greater(t, size, service.MaxProfileImageBytes)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		payload := strings.Repeat("A", service.MaxProfileImageBytes/3*4)
		_, err := service.ValidateProfileImage("data:image/png;base64," + payload)
		assert.NoError(t, err)
	})
}

func TestRequestValidation(t *testing.T) {
	title := "T"
	long := strings.Repeat("x", 201)

	tests := []struct {
		name    string
		req     interface{ Validate() error }
		wantErr bool
	}{
		{"register ok", service.RegisterRequest{Name: "A", Email: "a@b.co", CompanyId: "c", Password: "secret1"}, false},
		{"register bad email", service.RegisterRequest{Name: "A", Email: "nope", CompanyId: "c", Password: "secret1"}, true},
		{"register short password", service.RegisterRequest{Name: "A", Email: "a@b.co", CompanyId: "c", Password: "123"}, true},
		{"register missing company", service.RegisterRequest{Name: "A", Email: "a@b.co", Password: "secret1"}, true},
		{"register password past bcrypt limit", service.RegisterRequest{Name: "A", Email: "a@b.co", CompanyId: "c", Password: strings.Repeat("p", 73)}, true},
		{"login empty", service.LoginRequest{}, true},
		{"forgot ok", service.ForgotPasswordRequest{Email: "a@b.co"}, false},
		{"reset non hex token", service.ResetPasswordRequest{Token: strings.Repeat("z", 64), Password: "secret1"}, true},
		{"reset ok", service.ResetPasswordRequest{Token: strings.Repeat("0f", 32), Password: "secret1"}, false},
		{"create doc title too long", service.CreateDocumentRequest{Title: long}, true},
		{"update doc nothing set", service.UpdateDocumentRequest{}, false},
		{"update doc title", service.UpdateDocumentRequest{Title: &title}, false},
		{"edit without document", service.EditRequest{Text: "x"}, true},
		{"edit empty text", service.EditRequest{DocumentId: "d"}, false},
		{"permissions without document", service.UpdatePermissionsRequest{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
