package helper

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 300

// QRDataURL renders a pairing payload to a PNG data URL that a browser can
// put straight into an <img src>.
func QRDataURL(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("empty qr payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PrintQR draws the payload as half-block characters, for operators pairing
// from the server console.
func PrintQR(payload string, w io.Writer) {
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, w)
}
