package kv

// Credential is what the side cache remembers for one container.
// Keyfile is a path, never keyfile contents.
type Credential struct {
	Password string `json:"password,omitempty"`
	Keyfile  string `json:"keyfile,omitempty"`
}

// CredentialCache remembers credentials per absolute container path and the
// last container used. Implementations decide where and how this is stored.
type CredentialCache interface {
	// Lookup returns the remembered credential for path, or nil if there is none.
	Lookup(path string) (*Credential, error)

	// Remember stores cred for path and makes path the last used container.
	Remember(path string, cred Credential) error

	// LastContainer returns the last used container path, or "" if unknown.
	LastContainer() (string, error)
}
