// internal/auth/auth.go
package auth

import (
	"bufio"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"insight-agent/internal/models"
)

const sha256Prefix = "{SHA256}"

// Credential is one users-file record.
type Credential struct {
	Password string // plain text or {SHA256}-prefixed hex digest
	Role     models.Role
}

// Users is the credential store loaded from the users file.
type Users map[string]Credential

// LoadUsers reads a `username:password:role` file, skipping blanks, comments
// and malformed lines. A missing file yields an empty store.
func LoadUsers(path string) (Users, error) {
	users := make(Users)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return users, nil
		}
		return nil, fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			continue
		}
		users[parts[0]] = Credential{
			Password: parts[1],
			Role:     models.ParseRole(parts[2]),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return users, nil
}

// VerifyUser checks credentials and returns the user's role on success.
func VerifyUser(username, password string, users Users) (bool, models.Role) {
	cred, ok := users[username]
	if !ok {
		return false, ""
	}

	if strings.HasPrefix(cred.Password, sha256Prefix) {
		expected := strings.TrimPrefix(cred.Password, sha256Prefix)
		sum := sha256.Sum256([]byte(password))
		if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(expected))) == 1 {
			return true, cred.Role
		}
		return false, ""
	}

	if subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) == 1 {
		return true, cred.Role
	}
	return false, ""
}
