package domain

type CredentialType string

const (
	CredentialEmail  CredentialType = "email"
	CredentialPhone  CredentialType = "phone"
	CredentialSocial CredentialType = "social"
)

// Credential is what the actor hands to the authenticator. Shape checks
// happen at the edge (CLI, BFF handler) before the session store sees it.
type Credential struct {
	Type        CredentialType `json:"type" validate:"required,oneof=email phone social"`
	Email       string         `json:"email,omitempty" validate:"required_if=Type email,omitempty,email"`
	Phone       string         `json:"phone,omitempty" validate:"required_if=Type phone,omitempty,e164"`
	Password    string         `json:"password,omitempty" validate:"required_unless=Type social,omitempty,min=6"`
	Provider    string         `json:"provider,omitempty" validate:"required_if=Type social,omitempty,oneof=google facebook line apple"`
	AccessToken string         `json:"access_token,omitempty" validate:"required_if=Type social"`
}
