package password

import "golang.org/x/crypto/bcrypt"

const MinLength = 8

// Hash returns the bcrypt hash stored in users.password_hash.
func Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored hash. Malformed hashes
// never match.
func Verify(password, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
}
