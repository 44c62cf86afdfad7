package gcsupload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// UploadError reports a storage write that failed for any reason other than
// the object already existing.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("storage upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader writes prepared media to a GCS bucket under content-addressed,
// per-user keys. It assumes Application Default Credentials are configured
// (gcloud auth application-default login).
type Uploader struct {
	client *storage.Client
	bucket string
	folder string
}

// NewUploader creates an Uploader with a shared storage client.
func NewUploader(ctx context.Context, bucket, folder string) (*Uploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket, folder: folder}, nil
}

// Close closes the underlying storage client.
func (u *Uploader) Close() error {
	if u.client != nil {
		return u.client.Close()
	}
	return nil
}

// Upload writes the payload to {folder}/{userID}/{sha1(data)} and returns its
// public URL. The write carries a does-not-exist precondition: a second upload
// of identical content hits the precondition and is treated as success, so
// identical uploads from the same user are idempotent. Failed uploads are not
// retried here.
func (u *Uploader) Upload(ctx context.Context, data []byte, userID, contentType string) (string, error) {
	objectName := path.Join(u.folder, ObjectKey(userID, data))
	obj := u.client.Bucket(u.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true})

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if objectExists(err) {
			return u.publicURL(objectName), nil
		}
		return "", &UploadError{Err: fmt.Errorf("copy to GCS writer: %w", err)}
	}

	if err := w.Close(); err != nil {
		if objectExists(err) {
			return u.publicURL(objectName), nil
		}
		return "", &UploadError{Err: fmt.Errorf("finalize upload: %w", err)}
	}

	return u.publicURL(objectName), nil
}

// objectExists reports whether the error is the precondition failure GCS
// returns when the object is already present.
func objectExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

func (u *Uploader) publicURL(objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, objectName)
}
