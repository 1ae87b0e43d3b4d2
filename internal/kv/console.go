package kv

// Prompter asks the user for a secret on the console.
type Prompter interface {
	Prompt(message string) (string, error)
}

// PasswordPolicy generates passwords and scores the ones users choose.
type PasswordPolicy interface {
	Generate() (string, error)

	// Score rates a password from 0 (trivial) to 4 (strong).
	Score(password string) int
}
