package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/onyxcmd/onyxd/config"
)

const (
	ProviderDropbox     = "dropbox"
	ProviderGoogleDrive = "google_drive"
)

// ErrProviderNotConnected is returned when a cloud export targets a
// provider without stored credentials.
var ErrProviderNotConnected = errors.New("archive: cloud provider is not connected")

var cloudClient = &http.Client{Timeout: 5 * time.Minute}

// CloudResult summarizes a completed cloud export.
type CloudResult struct {
	Provider   string `json:"provider"`
	RemotePath string `json:"remote_path"`
	Size       int64  `json:"size"`
}

// ExportToCloud uploads a backup bundle to the named provider. Transient
// upload failures are retried with exponential backoff; expired Google
// Drive credentials are refreshed transparently before the upload.
func (a *Archive) ExportToCloud(ctx context.Context, provider, backupPath string) (*CloudResult, error) {
	info, err := os.Stat(backupPath)
	if err != nil {
		return nil, errors.Wrap(err, "archive: backup file not found")
	}

	var remote string
	switch provider {
	case ProviderDropbox:
		remote, err = a.uploadDropbox(ctx, backupPath)
	case ProviderGoogleDrive:
		remote, err = a.uploadGoogleDrive(ctx, backupPath)
	default:
		return nil, errors.New("archive: unsupported cloud provider " + provider)
	}
	if err != nil {
		a.log.Error("Cloud export failed", filepath.Base(backupPath), map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, err
	}

	a.log.Info("Backup exported to cloud storage", filepath.Base(backupPath), map[string]interface{}{
		"provider": provider,
		"remote":   remote,
	})
	return &CloudResult{Provider: provider, RemotePath: remote, Size: info.Size()}, nil
}

func retryUpload(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(op, policy)
}

// permanent wraps an error so the retry loop gives up immediately.
// Authentication and client errors will not heal with time.
func permanent(err error) error {
	return backoff.Permanent(err)
}

func (a *Archive) uploadDropbox(ctx context.Context, backupPath string) (string, error) {
	cfg := config.Get().Archive.Cloud.Dropbox
	if !cfg.Connected || cfg.Token == "" {
		return "", ErrProviderNotConnected
	}

	remote := "/onyxd-backups/" + filepath.Base(backupPath)
	arg, err := json.Marshal(map[string]interface{}{
		"path": remote,
		"mode": "overwrite",
	})
	if err != nil {
		return "", errors.Wrap(err, "archive: failed to encode upload argument")
	}

	err = retryUpload(ctx, func() error {
		f, err := os.Open(backupPath)
		if err != nil {
			return permanent(err)
		}
		defer f.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://content.dropboxapi.com/2/files/upload", f)
		if err != nil {
			return permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
		req.Header.Set("Dropbox-API-Arg", string(arg))
		req.Header.Set("Content-Type", "application/octet-stream")

		res, err := cloudClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			return permanent(errors.New("archive: dropbox rejected the access token"))
		}
		if res.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return fmt.Errorf("archive: dropbox upload failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return remote, nil
}

// VerifyDropboxToken checks an access token against the account endpoint
// before it is stored. Called by the settings surface on connect.
func VerifyDropboxToken(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.dropboxapi.com/2/users/get_current_account", nil)
	if err != nil {
		return errors.Wrap(err, "archive: failed to build verification request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := cloudClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "archive: dropbox verification request failed")
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return errors.New("archive: dropbox rejected the access token")
	}
	return nil
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// refreshGoogleToken exchanges the refresh token for a fresh access
// token and persists it back into the configuration.
func (a *Archive) refreshGoogleToken(ctx context.Context) (string, error) {
	cfg := config.Get().Archive.Cloud.GoogleDrive
	if cfg.RefreshToken == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return "", ErrProviderNotConnected
	}

	form := url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"refresh_token": {cfg.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://oauth2.googleapis.com/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "archive: failed to build token refresh request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := cloudClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "archive: google token refresh request failed")
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", errors.New("archive: google rejected the refresh token")
	}

	var token googleTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&token); err != nil {
		return "", errors.Wrap(err, "archive: malformed token refresh response")
	}

	config.Update(func(c *config.Configuration) {
		c.Archive.Cloud.GoogleDrive.Token = token.AccessToken
	})
	if err := config.WriteToDisk(config.Get()); err != nil {
		a.log.Warning("Failed to persist refreshed cloud token", "", nil)
	}
	return token.AccessToken, nil
}

func (a *Archive) uploadGoogleDrive(ctx context.Context, backupPath string) (string, error) {
	cfg := config.Get().Archive.Cloud.GoogleDrive
	if !cfg.Connected {
		return "", ErrProviderNotConnected
	}

	token, err := a.refreshGoogleToken(ctx)
	if err != nil {
		return "", err
	}

	name := filepath.Base(backupPath)
	err = retryUpload(ctx, func() error {
		f, err := os.Open(backupPath)
		if err != nil {
			return permanent(err)
		}
		defer f.Close()

		var body bytes.Buffer
		writer := multipart.NewWriter(&body)

		meta, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
		if err != nil {
			return permanent(err)
		}
		if err := json.NewEncoder(meta).Encode(map[string]string{"name": name}); err != nil {
			return permanent(err)
		}
		part, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/zip"}})
		if err != nil {
			return permanent(err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return permanent(err)
		}
		if err := writer.Close(); err != nil {
			return permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart", &body)
		if err != nil {
			return permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

		res, err := cloudClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			return permanent(errors.New("archive: google drive rejected the access token"))
		}
		if res.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return fmt.Errorf("archive: google drive upload failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}
