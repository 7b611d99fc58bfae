package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// testEncryptionKey is a fixed 32-byte key for testing (hex-encoded to 64 chars)
const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("SQR_CONFIG_DIR", t.TempDir())
	t.Setenv("SQR_ENCRYPTION_KEY", testEncryptionKey)

	store, err := NewStoreWithKeyProvider(NewEnvKeyProvider("SQR_ENCRYPTION_KEY"))
	if err != nil {
		t.Fatalf("NewStoreWithKeyProvider() error = %v", err)
	}
	return store
}

func TestCredentialsDir(t *testing.T) {
	t.Setenv("SQR_CONFIG_DIR", "/tmp/test-sqr-creds")
	dir, err := CredentialsDir()
	if err != nil {
		t.Fatalf("CredentialsDir() error = %v", err)
	}
	if dir != "/tmp/test-sqr-creds" {
		t.Errorf("CredentialsDir() = %v", dir)
	}
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"complete", Credentials{UserID: "u-1", Token: "tok"}, false},
		{"missing user id", Credentials{Token: "tok"}, true},
		{"missing token", Credentials{UserID: "u-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	creds := &Credentials{
		UserID:     "user-123",
		Email:      "replay-abc@test.invalid",
		Token:      "secret-token-value",
		ServiceURL: "https://svc.example.com",
	}

	if err := store.Save(creds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.UserID != creds.UserID {
		t.Errorf("UserID = %v, want %v", loaded.UserID, creds.UserID)
	}
	if loaded.Token != creds.Token {
		t.Errorf("Token = %v, want %v", loaded.Token, creds.Token)
	}
	if loaded.Email != creds.Email {
		t.Errorf("Email = %v, want %v", loaded.Email, creds.Email)
	}
	if loaded.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set on save")
	}
}

func TestTokenEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)

	creds := &Credentials{UserID: "user-123", Token: "plaintext-secret"}
	if err := store.Save(creds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path, err := CredentialsPath()
	if err != nil {
		t.Fatalf("CredentialsPath() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading credentials file: %v", err)
	}

	if strings.Contains(string(data), "plaintext-secret") {
		t.Error("token stored in plaintext")
	}

	var onDisk Credentials
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parsing stored file: %v", err)
	}
	if onDisk.UserID != "user-123" {
		t.Errorf("UserID on disk = %v", onDisk.UserID)
	}
}

func TestSaveRejectsIncomplete(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(&Credentials{UserID: "u"}); err == nil {
		t.Error("Save() should reject credentials without a token")
	}
}

func TestLoadNoCredentials(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load(); err != ErrNoCredentials {
		t.Errorf("Load() error = %v, want ErrNoCredentials", err)
	}
}

func TestLoadWrongKey(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(&Credentials{UserID: "u", Token: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	t.Setenv("SQR_ENCRYPTION_KEY",
		"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	other, err := NewStoreWithKeyProvider(NewEnvKeyProvider("SQR_ENCRYPTION_KEY"))
	if err != nil {
		t.Fatalf("NewStoreWithKeyProvider() error = %v", err)
	}

	if _, err := other.Load(); err == nil {
		t.Error("Load() should fail with the wrong encryption key")
	}
}

func TestDeleteAndExists(t *testing.T) {
	store := newTestStore(t)

	if store.Exists() {
		t.Error("Exists() should be false before save")
	}

	if err := store.Save(&Credentials{UserID: "u", Token: "tok"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !store.Exists() {
		t.Error("Exists() should be true after save")
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists() {
		t.Error("Exists() should be false after delete")
	}

	// Deleting again is a no-op.
	if err := store.Delete(); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestGetActiveCredentialEnvOverride(t *testing.T) {
	store := newTestStore(t)
	t.Setenv("SQR_USER_TOKEN", "env-token")
	t.Setenv("SQR_USER_ID", "env-user")

	creds, err := store.GetActiveCredential()
	if err != nil {
		t.Fatalf("GetActiveCredential() error = %v", err)
	}
	if creds.Token != "env-token" || creds.UserID != "env-user" {
		t.Errorf("GetActiveCredential() = %+v, want env values", creds)
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("short"); got != "*****" {
		t.Errorf("MaskToken(short) = %v", got)
	}

	long := "abcdefgh-middle-part-stuvwxyz"
	got := MaskToken(long)
	if !strings.HasPrefix(got, "abcdefgh") || !strings.HasSuffix(got, "stuvwxyz") {
		t.Errorf("MaskToken(long) = %v", got)
	}
	if strings.Contains(got, "middle") {
		t.Errorf("MaskToken(long) leaked middle: %v", got)
	}
}

func TestRegister(t *testing.T) {
	var gotPath string
	var gotEmail string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		gotEmail = req["email"]

		json.NewEncoder(w).Encode(map[string]string{
			"user_id": "user-789",
			"token":   "issued-token",
		})
	}))
	defer srv.Close()

	creds, err := Register(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if gotPath != RegisterPath {
		t.Errorf("request path = %v, want %v", gotPath, RegisterPath)
	}
	if gotEmail == "" || !strings.HasPrefix(gotEmail, "replay-") {
		t.Errorf("registration email = %q", gotEmail)
	}
	if creds.UserID != "user-789" || creds.Token != "issued-token" {
		t.Errorf("Register() = %+v", creds)
	}
	if creds.Email != gotEmail {
		t.Errorf("Email = %v, want %v", creds.Email, gotEmail)
	}
}

func TestRegisterErrors(t *testing.T) {
	t.Run("missing engine url", func(t *testing.T) {
		if _, err := Register(context.Background(), "", nil); err == nil {
			t.Error("Register() should require an engine url")
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "engine down", http.StatusInternalServerError)
		}))
		defer srv.Close()

		if _, err := Register(context.Background(), srv.URL, srv.Client()); err == nil {
			t.Error("Register() should fail on 500")
		}
	})

	t.Run("incomplete response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"user_id": "u-only"})
		}))
		defer srv.Close()

		if _, err := Register(context.Background(), srv.URL, srv.Client()); err == nil {
			t.Error("Register() should reject a response without a token")
		}
	})
}

func TestPath_UsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQR_CONFIG_DIR", dir)

	path, err := CredentialsPath()
	if err != nil {
		t.Fatalf("CredentialsPath() error = %v", err)
	}
	if path != filepath.Join(dir, DefaultCredentialsFile) {
		t.Errorf("CredentialsPath() = %v", path)
	}
}
