package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"

	domain "github.com/storefront/api/internal/domain"
)

const invoiceContentType = "application/pdf"

// ObjectAttrs is the subset of object metadata the archive sets on writes.
type ObjectAttrs struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectWriterFunc opens a writer for bucket/object. Closing the writer commits the object.
type ObjectWriterFunc func(ctx context.Context, bucket, object string, attrs ObjectAttrs) io.WriteCloser

// InvoiceArchive stores rendered invoices in a Cloud Storage bucket.
type InvoiceArchive struct {
	bucket string
	open   ObjectWriterFunc
}

// NewInvoiceArchive constructs an archive writing through client.
func NewInvoiceArchive(client *gcs.Client, bucket string) (*InvoiceArchive, error) {
	if client == nil {
		return nil, errors.New("storage archive: client is required")
	}
	return newInvoiceArchive(bucket, func(ctx context.Context, bucket, object string, attrs ObjectAttrs) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = attrs.ContentType
		w.Metadata = attrs.Metadata
		return w
	})
}

func newInvoiceArchive(bucket string, open ObjectWriterFunc) (*InvoiceArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	if open == nil {
		return nil, errors.New("storage archive: writer is required")
	}
	return &InvoiceArchive{bucket: bucket, open: open}, nil
}

var errInvalidBucket = errors.New("storage: bucket name is required")

// StoreInvoice uploads pdf and returns the gs:// URI of the stored object.
func (a *InvoiceArchive) StoreInvoice(ctx context.Context, order domain.Order, pdf []byte) (string, error) {
	if a == nil || a.open == nil {
		return "", errors.New("storage archive: not initialised")
	}
	if len(pdf) == 0 {
		return "", errors.New("storage archive: invoice is empty")
	}
	object, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	})
	if err != nil {
		return "", err
	}

	w := a.open(ctx, a.bucket, object, ObjectAttrs{
		ContentType: invoiceContentType,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"userId":      order.UserID,
		},
	})
	if _, err := w.Write(pdf); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage archive: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage archive: commit %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
