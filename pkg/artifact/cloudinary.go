package artifact

import (
	"bytes"
	"context"
	"errors"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

const uploadFolder = "analysis-inputs"

// CloudinaryStore persists artifacts in Cloudinary. Uploaded inputs are
// addressed by their secure URL, which the retry scheduler fetches back
// over HTTP.
type CloudinaryStore struct {
	uploader *uploader.API
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary not configured")
	}
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &CloudinaryStore{uploader: up}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, id string, data []byte) (string, error) {
	result, err := s.uploader.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:   uploadFolder,
		PublicID: id,
	})
	if err != nil {
		return "", err
	}
	return result.SecureURL, nil
}

func (s *CloudinaryStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	return fetchHTTP(ctx, url)
}
