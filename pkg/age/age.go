package age

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"

	fage "filippo.io/age"
	"github.com/mitchellh/mapstructure"
)

// Prefix marks a config value as an age encrypted, base64 encoded secret.
const Prefix = "age:"

var commentLine = regexp.MustCompile(`(?m)^#.*\n?`)

// LoadIdentity reads an X25519 identity from an age key file. Comment lines
// written by age-keygen are ignored.
func LoadIdentity(keypath string) (*fage.X25519Identity, error) {
	b, err := os.ReadFile(keypath)
	if err != nil {
		return nil, fmt.Errorf("failed to open age key `%s`: %w", keypath, err)
	}
	return ParseIdentity(b)
}

func ParseIdentity(b []byte) (*fage.X25519Identity, error) {
	c := commentLine.ReplaceAll(b, nil)
	return fage.ParseX25519Identity(strings.TrimSpace(string(c)))
}

// Decode decrypts a value of the form `age:<base64 ciphertext>`.
func Decode(s string, a *fage.X25519Identity) (string, error) {
	enc := strings.TrimPrefix(s, Prefix)
	eb, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("invalid age payload: %w", err)
	}
	d, err := fage.Decrypt(bytes.NewReader(eb), a)
	if err != nil {
		return "", err
	}
	b := &bytes.Buffer{}
	if _, err := io.Copy(b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Encode encrypts s for the identity's recipient, producing a value Decode accepts.
func Encode(s string, a *fage.X25519Identity) (string, error) {
	b := &bytes.Buffer{}
	w, err := fage.Encrypt(b, a.Recipient())
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return Prefix + base64.StdEncoding.EncodeToString(b.Bytes()), nil
}

// HookFunc decrypts prefixed string values while viper unmarshals config.
// A nil identity leaves values untouched.
func HookFunc(a *fage.X25519Identity) mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if a == nil || f.Kind() != reflect.String || t.Kind() != reflect.String {
			return data, nil
		}

		s := data.(string)
		if !strings.HasPrefix(s, Prefix) {
			return data, nil
		}

		return Decode(s, a)
	}
}
