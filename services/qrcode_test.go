package services

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/png"
	"strings"
	"testing"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeQRDataURL(t *testing.T, dataURL string) string {
	t.Helper()

	encoded, ok := strings.CutPrefix(dataURL, "data:image/png;base64,")
	require.True(t, ok, "payload should be a PNG data URL")

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)

	result, err := zxingqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)

	return result.GetText()
}

func TestQRGenerator_RoundTrip(t *testing.T) {
	gen := NewQRGenerator(256)

	for _, number := range []string{"PLECOM-A1B2C3D4", "UNI-00FFAA11", "AB-12345678"} {
		payload, err := gen.DataURL(number)

		require.NoError(t, err)
		assert.Equal(t, number, decodeQRDataURL(t, payload))
	}
}

func TestQRGenerator_Deterministic(t *testing.T) {
	gen := NewQRGenerator(128)

	first, err := gen.DataURL("PLECOM-A1B2C3D4")
	require.NoError(t, err)
	second, err := gen.DataURL("PLECOM-A1B2C3D4")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQRGenerator_DefaultSize(t *testing.T) {
	gen := NewQRGenerator(0)

	payload, err := gen.DataURL("UNI-00000000")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload, "data:image/png;base64,"))
}
