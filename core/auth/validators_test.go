package auth

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/uniteams/uniteams/core"
)

func fieldErr(t *testing.T, err error, field string) core.FieldError {
	t.Helper()
	flds := core.FieldErrors(err)
	for _, fld := range flds {
		if fld.Field == field {
			return fld
		}
	}
	t.Fatalf("no error for field %q in %+v (cause: %v)", field, flds, errors.Cause(err))
	return core.FieldError{}
}

func TestNewAccount_Validate(t *testing.T) {
	tests := []struct {
		name     string
		acct     NewAccount
		wantFld  string
		wantText string
	}{
		{
			name: "ok",
			acct: NewAccount{Email: "ana@uni.test", Password: "s3cur3-Pass!", FirstName: "Ana", LastName: "Gomez"},
		},
		{
			name: "email cleaned and lowered",
			acct: NewAccount{Email: "  Ana@Uni.Test ", Password: "s3cur3-Pass!"},
		},
		{
			name:    "missing email",
			acct:    NewAccount{Password: "s3cur3-Pass!"},
			wantFld: "email", wantText: requiredText(),
		},
		{
			name:    "invalid email",
			acct:    NewAccount{Email: "nope", Password: "s3cur3-Pass!"},
			wantFld: "email",
		},
		{
			name:    "missing password",
			acct:    NewAccount{Email: "ana@uni.test"},
			wantFld: "password", wantText: requiredText(),
		},
		{
			name:    "password too short",
			acct:    NewAccount{Email: "ana@uni.test", Password: "aB1!"},
			wantFld: "password", wantText: pwdMinLenText,
		},
		{
			name:    "password with whitespace",
			acct:    NewAccount{Email: "ana@uni.test", Password: "aB1! aB1!"},
			wantFld: "password", wantText: pwdNoSpaceText,
		},
		{
			name:    "password all numeric",
			acct:    NewAccount{Email: "ana@uni.test", Password: "19283746"},
			wantFld: "password", wantText: pwdNotAllNumText,
		},
		{
			name:    "password lacks complexity",
			acct:    NewAccount{Email: "ana@uni.test", Password: "abcdefg1"},
			wantFld: "password", wantText: pwdComplexityText,
		},
		{
			name:    "password similar to email",
			acct:    NewAccount{Email: "Ana.Gomez88@uni.test", Password: "ana.Gomez88@uni.t!"},
			wantFld: "password", wantText: pwdAttrSimText,
		},
		{
			name:    "common password",
			acct:    NewAccount{Email: "ana@uni.test", Password: "P@ssw0rd"},
			wantFld: "password", wantText: pwdNoCommonText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.acct.Validate()
			if tt.wantFld == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want validation error")
			}
			fld := fieldErr(t, err, tt.wantFld)
			if tt.wantText != "" && fld.Error != tt.wantText {
				t.Errorf("field %q error = %q, want %q", tt.wantFld, fld.Error, tt.wantText)
			}
		})
	}
}

func requiredText() string { return "this field is required" }

func TestCredentials_Validate(t *testing.T) {
	c := Credentials{Email: " Luis@Uni.Test ", Password: "whatever"}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	if c.Email != "luis@uni.test" {
		t.Errorf("Email = %q, want cleaned and lowered", c.Email)
	}

	c = Credentials{}
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want validation error")
	}
}
