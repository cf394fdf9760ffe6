package models

// SecretBaseURL is the secret holding the upstream endpoint
const SecretBaseURL = "BASE_URL"

// Secrets is the credential map delivered by the platform
type Secrets map[string]string

// BaseURL returns the upstream endpoint secret
func (s Secrets) BaseURL() string {
	return s[SecretBaseURL]
}

// Request is one invocation from the platform
type Request struct {
	State   State   `json:"state"`
	Secrets Secrets `json:"secrets"`
}
