// Package gcpauth locates Google Cloud credentials for Firestore and Vertex AI.
package gcpauth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// WellKnownFiles are probed in the repository root when no explicit path is
// configured.
var WellKnownFiles = []string{
	"vertex-ai-thinkblock.json",
	"firebase-credentials.json",
}

// FindFile returns the first usable credentials file. Explicit paths are
// tried in order; relative ones resolve against root. Then the well-known
// filenames under root are probed. An empty result means the caller should
// fall back to ambient credentials.
func FindFile(root string, explicit ...string) string {
	for _, p := range explicit {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if fileExists(p) {
			return p
		}
	}
	for _, name := range WellKnownFiles {
		p := filepath.Join(root, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// Detect returns cloud-platform credentials from file, or the ambient
// application-default credentials when file is empty.
func Detect(file string) (*auth.Credentials, error) {
	opts := &credentials.DetectOptions{
		Scopes: []string{cloudPlatformScope},
	}
	if file != "" {
		opts.CredentialsFile = file
	}
	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		if file != "" {
			return nil, fmt.Errorf("gcpauth: load %s: %w", file, err)
		}
		return nil, fmt.Errorf("gcpauth: no credentials file and no ambient credentials: %w", err)
	}
	return creds, nil
}

// ErrNoProject is returned when neither config nor credentials name a project.
var ErrNoProject = errors.New("gcpauth: project id unknown")

// ProjectID prefers the configured id and falls back to the one embedded in
// the credentials.
func ProjectID(ctx context.Context, creds *auth.Credentials, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if creds != nil {
		if id, err := creds.ProjectID(ctx); err == nil && id != "" {
			return id, nil
		}
	}
	return "", ErrNoProject
}
