package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrBadInitData is returned when a session payload is missing its hash
// field or fails signature verification.
var ErrBadInitData = errors.New("invalid init data")

// Identity is the structured user identity embedded in a verified
// session payload. ID is always set; the name fields may be empty.
type Identity struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// DisplayName picks the best available human-readable name.
func (id Identity) DisplayName() string {
	if id.Username != "" {
		return id.Username
	}
	if id.FirstName != "" {
		return id.FirstName
	}
	return fmt.Sprintf("user%d", id.ID)
}

// InitData is a verified session payload. Fields holds every decoded
// key/value pair except the hash; User is set when the payload carried
// a decodable user field.
type InitData struct {
	Fields map[string]string
	User   *Identity
}

// VerifyInitData authenticates a signed WebApp session payload against
// the bot token. The data-check string is every field except "hash",
// sorted by key and joined as k=v lines; the signing key is
// SHA-256(botToken); the signature is HMAC-SHA-256 in hex, compared in
// constant time. A user field that fails to decode is non-fatal: the
// raw value stays in Fields and User is left nil.
func VerifyInitData(raw, botToken string) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, ErrBadInitData
	}

	fields := make(map[string]string, len(values))
	for k, vs := range values {
		fields[k] = vs[len(vs)-1]
	}

	check, ok := fields["hash"]
	if !ok || check == "" {
		return nil, ErrBadInitData
	}
	delete(fields, "hash")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	dataCheckString := strings.Join(lines, "\n")

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(dataCheckString))
	calculated := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(calculated), []byte(check)) {
		return nil, ErrBadInitData
	}

	data := &InitData{Fields: fields}
	if rawUser, ok := fields["user"]; ok {
		var ident Identity
		if err := json.Unmarshal([]byte(rawUser), &ident); err == nil && ident.ID != 0 {
			data.User = &ident
		}
	}
	return data, nil
}
