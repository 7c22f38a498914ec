// Package media stores product images on Cloudinary.
package media

import (
	"context"
	"fmt"
	"io"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// Uploaded is a stored image
type Uploaded struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// Uploader wraps a Cloudinary client. A nil or unconfigured Uploader rejects
// every call with models.ErrMediaDisabled.
type Uploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewUploader builds an uploader from a cloudinary:// URL. An empty URL
// yields a disabled uploader.
func NewUploader(cloudURL, folder string) (*Uploader, error) {
	if cloudURL == "" {
		return &Uploader{folder: folder}, nil
	}

	cld, err := cloudinary.NewFromURL(cloudURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	return &Uploader{cld: cld, folder: folder}, nil
}

// Enabled reports whether uploads are configured
func (u *Uploader) Enabled() bool {
	return u != nil && u.cld != nil
}

// Upload stores an image and returns its secure URL
func (u *Uploader) Upload(ctx context.Context, file io.Reader) (*Uploaded, error) {
	if !u.Enabled() {
		return nil, models.ErrMediaDisabled
	}

	ctx, span := util.StartSpan(ctx, "Uploader.Upload")
	defer span.End()

	result, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{Folder: u.folder})
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	if result.Error.Message != "" {
		return nil, fmt.Errorf("upload failed: %s", result.Error.Message)
	}

	util.GetLogger().Info("Image uploaded", zap.String("public_id", result.PublicID))
	return &Uploaded{URL: result.SecureURL, PublicID: result.PublicID}, nil
}

// Destroy deletes a stored image by public id
func (u *Uploader) Destroy(ctx context.Context, publicID string) error {
	if !u.Enabled() {
		return models.ErrMediaDisabled
	}
	if publicID == "" {
		return models.Validationf("public id is required")
	}

	ctx, span := util.StartSpan(ctx, "Uploader.Destroy")
	defer span.End()

	result, err := u.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if result.Result == "not found" {
		return models.NotFoundf("image %s", publicID)
	}

	util.GetLogger().Info("Image deleted", zap.String("public_id", publicID))
	return nil
}
