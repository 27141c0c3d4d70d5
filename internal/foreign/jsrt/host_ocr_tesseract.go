//go:build tesseract

package jsrt

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

const ocrAvailable = true

func recognize(img []byte, lang string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language %s: %w", lang, err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return client.Text()
}
