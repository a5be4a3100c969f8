package service

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
)

const (
	maxNameLength     = 100
	maxEmailLength    = 254
	maxCompanyLength  = 100
	minPasswordLength = 6
	maxPasswordLength = 72
	maxTitleLength    = 200
	// Must stay below the websocket read limit
	maxContentLength = 512 << 10
	resetTokenLength = 64
)

// invalid turns an ozzo error into a validation failure.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Wrap(err, apperr.KindValidation, err.Error())
}

var (
	emailRules    = []validation.Rule{validation.Required, validation.Length(1, maxEmailLength), is.EmailFormat}
	passwordRules = []validation.Rule{validation.Required, validation.Length(minPasswordLength, maxPasswordLength)}
)

func (r LoginRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	))
}

func (r RegisterRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.CompanyId, validation.Required, validation.Length(1, maxCompanyLength)),
		validation.Field(&r.Password, passwordRules...),
	))
}

func (r ForgotPasswordRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
	))
}

func (r ResetPasswordRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required, validation.Length(resetTokenLength, resetTokenLength), is.Hexadecimal),
		validation.Field(&r.Password, passwordRules...),
	))
}

func (r UpdatePasswordRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, passwordRules...),
	))
}

func (r UpdateProfileRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.CompanyId, validation.Length(0, maxCompanyLength)),
	))
}

func (r UpdateUserPermissionsRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.UserId, validation.Required),
		validation.Field(&r.Role, validation.Required, validation.In(models.RoleMember, models.RoleAdmin, models.RoleOwner)),
	))
}

func (r CreateDocumentRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, maxTitleLength)),
	))
}

func (r UpdateDocumentRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, maxTitleLength)),
		validation.Field(&r.Content, validation.Length(0, maxContentLength)),
	))
}

func (r EditRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.DocumentId, validation.Required),
		validation.Field(&r.Text, validation.Length(0, maxContentLength)),
	))
}

func (r UpdatePermissionsRequest) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.DocumentId, validation.Required),
	))
}
