// Package invoice renders order invoices as PDF documents.
package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	domain "github.com/storefront/api/internal/domain"
)

const missingEmail = "N/A"

// Renderer draws a single-page A4 invoice with the core Helvetica font.
type Renderer struct {
	location *time.Location
	now      func() time.Time
	compress bool
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithLocation sets the zone used to print the order date.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithClock overrides the clock used for orders without a creation time.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRenderer returns a renderer printing dates in Indian Standard Time by default.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		location: time.FixedZone("IST", 5*60*60+30*60),
		now:      time.Now,
		compress: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Render returns the PDF bytes for order. An empty email prints as N/A.
func (r *Renderer) Render(order domain.Order, customerEmail string) ([]byte, error) {
	created := order.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	created = created.In(r.location)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetTitle("Invoice "+order.DisplayNumber(), true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "", 20)
	pdf.CellFormat(0, 12, "Invoice", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	writeLine := func(text string) {
		pdf.MultiCell(0, 7, tr(text), "", "L", false)
	}

	email := strings.TrimSpace(customerEmail)
	if email == "" {
		email = missingEmail
	}
	writeLine("Order ID: " + order.DisplayNumber())
	writeLine("Customer Email: " + email)
	writeLine("Order Date: " + created.Format("02 Jan 2006, 03:04 PM"))
	pdf.Ln(6)

	writeLine("Products:")
	for i, item := range order.Items {
		codeInfo := ""
		if item.Code != "" {
			codeInfo = " (Code: " + item.Code + ")"
		}
		writeLine(fmt.Sprintf("%d. %s%s x %d = %s", i+1, item.Name, codeInfo, item.Quantity, domain.FormatAmount(item.Price)))
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr("Total: "+domain.FormatAmount(order.Amount)), "", 1, "R", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("invoice: render %s: %w", order.ID, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoice: write %s: %w", order.ID, err)
	}
	return buf.Bytes(), nil
}
