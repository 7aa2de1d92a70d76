package services

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrDataURLPrefix = "data:image/png;base64,"

// QRGenerator encodes ticket numbers as PNG data URLs, ready for inline
// embedding. Deterministic and side-effect free.
type QRGenerator struct {
	size int
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{size: size}
}

func (g *QRGenerator) DataURL(ticketNumber string) (string, error) {
	png, err := qrcode.Encode(ticketNumber, qrcode.Highest, g.size)
	if err != nil {
		return "", fmt.Errorf("generate qr code for %q: %w", ticketNumber, err)
	}
	return qrDataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
