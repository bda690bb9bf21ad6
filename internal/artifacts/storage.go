// Package artifacts stores apply-confirmation screenshots. With Supabase
// configured they go to the bucket and a short-lived signed URL comes
// back; otherwise they land under DATA_DIR, which production refuses.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	supabase "github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"

	"autoapply/internal/config"
	"autoapply/internal/logger"
)

type Storage struct {
	cfg    *config.Config
	client *supabase.Client
	log    *logger.Logger
}

func New(cfg *config.Config) *Storage {
	s := &Storage{cfg: cfg, log: logger.New("Artifacts")}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil)
		if err != nil {
			s.log.LogWarnf("supabase client init failed, using local storage: %v", err)
		} else {
			s.client = client
		}
	}
	return s
}

// SaveConfirmation stores one screenshot and returns a URL or local path.
func (s *Storage) SaveConfirmation(ctx context.Context, userID, jobID string, png []byte) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.png", time.Now().Format("20060102_150405"), sanitize(userID), sanitize(jobID))
	bucketPath := "confirmations/" + name

	if s.client != nil && s.cfg.SupabaseBucket != "" {
		mimeType := "image/png"
		if _, err := s.client.Storage.UploadFile(s.cfg.SupabaseBucket, bucketPath, bytes.NewReader(png), storage_go.FileOptions{ContentType: &mimeType}); err != nil {
			if s.cfg.AppEnv == "production" {
				return "", fmt.Errorf("upload confirmation: %w", err)
			}
			s.log.LogWarnf("supabase upload failed, falling back to local: %v", err)
			return s.saveLocal(name, png)
		}
		signed, err := s.signedURL(ctx, bucketPath, 15*60)
		if err != nil {
			if s.cfg.AppEnv == "production" {
				return "", fmt.Errorf("sign confirmation URL: %w", err)
			}
			s.log.LogWarnf("signing failed, falling back to local: %v", err)
			return s.saveLocal(name, png)
		}
		return signed, nil
	}

	if s.cfg.AppEnv == "production" {
		return "", fmt.Errorf("supabase storage is required in production")
	}
	return s.saveLocal(name, png)
}

func (s *Storage) saveLocal(name string, png []byte) (string, error) {
	dir := filepath.Join(s.cfg.DataDir, "confirmations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// signedURL signs the object with a direct REST call; the storage client's
// own signing reuses stale auth headers on long-lived clients.
func (s *Storage) signedURL(ctx context.Context, objectPath string, expiresIn int) (string, error) {
	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s",
		strings.TrimRight(s.cfg.SupabaseURL, "/"), s.cfg.SupabaseBucket, objectPath)

	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(map[string]int{"expiresIn": expiresIn}); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.SupabaseServiceKey)
	req.Header.Set("apikey", s.cfg.SupabaseServiceKey)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sign request returned %d", resp.StatusCode)
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", err
	}

	path := signed.SignedURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasPrefix(path, "/storage/v1/") {
		path = "/storage/v1" + path
	}
	return strings.TrimRight(s.cfg.SupabaseURL, "/") + path, nil
}

func sanitize(s string) string {
	replacer := strings.NewReplacer(":", "-", "/", "-", "?", "-", "&", "-", "=", "-", "#", "-", "%", "")
	out := replacer.Replace(s)
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}
