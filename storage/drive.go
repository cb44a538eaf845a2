package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveStore uploads images into a Google Drive folder with a service
// account and returns their web view link.
type DriveStore struct {
	service  *drive.Service
	folderID string
}

func NewDriveStore(ctx context.Context, credentialsFile, folderID string) (*DriveStore, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	service, err := drive.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &DriveStore{service: service, folderID: folderID}, nil
}

func NewDriveStoreWithService(service *drive.Service, folderID string) *DriveStore {
	return &DriveStore{service: service, folderID: folderID}
}

func (s *DriveStore) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	driveFile := &drive.File{
		Name:     name,
		MimeType: contentType,
		Parents:  []string{s.folderID},
	}
	uploaded, err := s.service.Files.Create(driveFile).
		Media(bytes.NewReader(data)).
		Fields("id", "webViewLink", "webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	// Avatars are shown to every signed-in user.
	_, err = s.service.Permissions.Create(uploaded.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to share file: %w", err)
	}

	if uploaded.WebContentLink != "" {
		return uploaded.WebContentLink, nil
	}
	return uploaded.WebViewLink, nil
}
