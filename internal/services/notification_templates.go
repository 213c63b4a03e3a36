package services

import (
	"fmt"
	"strings"

	domain "github.com/storefront/api/internal/domain"
)

const (
	confirmationSubject = "Order Confirmation - Thank You for Shopping!"
	invoiceSubject      = "Your Order Invoice - Delivered"
	invoiceFilename     = "invoice.pdf"
)

func composeConfirmation(order Order, to string) MailMessage {
	var b strings.Builder
	b.WriteString("Your order has been placed successfully.\n\n")
	if number := order.DisplayNumber(); number != "" {
		fmt.Fprintf(&b, "Order: %s\n\n", number)
	}
	b.WriteString("Items:\n")
	for i, item := range order.Items {
		name := item.Name
		if name == "" {
			name = "Item"
		}
		codeInfo := ""
		if item.Code != "" {
			codeInfo = " [Code: " + item.Code + "]"
		}
		fmt.Fprintf(&b, "%d. %s%s (Qty: %d) - %s\n", i+1, name, codeInfo, item.Quantity, domain.FormatAmount(item.Price))
	}
	fmt.Fprintf(&b, "\nTotal Amount: %s\n\nWe will deliver it soon. Thank you!", domain.FormatAmount(order.Amount))

	return MailMessage{
		To:      to,
		Subject: confirmationSubject,
		Text:    b.String(),
	}
}

func composeInvoice(order Order, to string, pdf []byte) MailMessage {
	text := "Hi there,\n\n" +
		"We're happy to let you know that your order " + order.DisplayNumber() + " has been successfully delivered!\n\n" +
		"Please find your invoice attached with this email for your records.\n\n" +
		"Thank you for shopping with us."
	return MailMessage{
		To:      to,
		Subject: invoiceSubject,
		Text:    text,
		Attachments: []MailAttachment{{
			Filename:    invoiceFilename,
			ContentType: "application/pdf",
			Content:     pdf,
		}},
	}
}
