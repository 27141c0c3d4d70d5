//go:build !tesseract

package jsrt

import "errors"

const ocrAvailable = false

func recognize([]byte, string) (string, error) {
	return "", errors.New("ocr support not compiled in; build with -tags tesseract")
}
