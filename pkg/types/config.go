package types

import "fmt"

// PdfOcrStrategy selects how the PDF parser applies OCR.
type PdfOcrStrategy int

const (
	OcrStrategyNoOCR PdfOcrStrategy = iota
	OcrStrategyOCROnly
	OcrStrategyOCRAndTextExtraction
	OcrStrategyAuto
)

var ocrStrategyNames = map[PdfOcrStrategy]string{
	OcrStrategyNoOCR:                "NO_OCR",
	OcrStrategyOCROnly:              "OCR_ONLY",
	OcrStrategyOCRAndTextExtraction: "OCR_AND_TEXT_EXTRACTION",
	OcrStrategyAuto:                 "AUTO",
}

// String returns the literal the foreign parser expects.
func (s PdfOcrStrategy) String() string {
	if name, ok := ocrStrategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PdfOcrStrategy(%d)", int(s))
}

// ParsePdfOcrStrategy parses a strategy literal such as "OCR_ONLY".
func ParsePdfOcrStrategy(name string) (PdfOcrStrategy, error) {
	for s, n := range ocrStrategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown pdf ocr strategy %q", name)
}

// MarshalYAML writes the strategy as its literal.
func (s PdfOcrStrategy) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the strategy from its literal.
func (s *PdfOcrStrategy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParsePdfOcrStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PdfConfig holds the PDF parser options.
type PdfConfig struct {
	OcrStrategy                   PdfOcrStrategy `yaml:"ocr_strategy"`
	ExtractInlineImages           bool           `yaml:"extract_inline_images"`
	ExtractUniqueInlineImagesOnly bool           `yaml:"extract_unique_inline_images_only"`
	ExtractMarkedContent          bool           `yaml:"extract_marked_content"`
	ExtractAnnotationText         bool           `yaml:"extract_annotation_text"`
}

// OfficeConfig holds the Office parser options.
type OfficeConfig struct {
	ExtractMacros                 bool `yaml:"extract_macros"`
	IncludeDeletedContent         bool `yaml:"include_deleted_content"`
	IncludeMoveFromContent        bool `yaml:"include_move_from_content"`
	IncludeShapeBasedContent      bool `yaml:"include_shape_based_content"`
	IncludeHeadersAndFooters      bool `yaml:"include_headers_and_footers"`
	IncludeMissingRows            bool `yaml:"include_missing_rows"`
	IncludeSlideNotes             bool `yaml:"include_slide_notes"`
	IncludeSlideMasterContent     bool `yaml:"include_slide_master_content"`
	ConcatenatePhoneticRuns       bool `yaml:"concatenate_phonetic_runs"`
	ExtractAllAlternativesFromMSG bool `yaml:"extract_all_alternatives_from_msg"`
}

// OcrConfig holds the Tesseract options.
type OcrConfig struct {
	Density                  int32  `yaml:"density"`
	Depth                    int32  `yaml:"depth"`
	TimeoutSeconds           int32  `yaml:"timeout_seconds"`
	EnableImagePreprocessing bool   `yaml:"enable_image_preprocessing"`
	ApplyRotation            bool   `yaml:"apply_rotation"`
	Language                 string `yaml:"language"`
}

// ExtractionConfig groups the three independent option records.
type ExtractionConfig struct {
	Pdf    PdfConfig    `yaml:"pdf"`
	Office OfficeConfig `yaml:"office"`
	Ocr    OcrConfig    `yaml:"ocr"`
}

// DefaultPdfConfig returns the parser's default PDF options.
func DefaultPdfConfig() PdfConfig {
	return PdfConfig{
		OcrStrategy:           OcrStrategyAuto,
		ExtractAnnotationText: true,
	}
}

// DefaultOfficeConfig returns the parser's default Office options.
func DefaultOfficeConfig() OfficeConfig {
	return OfficeConfig{
		IncludeShapeBasedContent:  true,
		IncludeHeadersAndFooters:  true,
		IncludeSlideNotes:         true,
		IncludeSlideMasterContent: true,
		ConcatenatePhoneticRuns:   true,
	}
}

// DefaultOcrConfig returns the default Tesseract options.
func DefaultOcrConfig() OcrConfig {
	return OcrConfig{
		Density:        300,
		Depth:          4,
		TimeoutSeconds: 130,
		Language:       "eng",
	}
}

// DefaultExtractionConfig returns all three default records.
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		Pdf:    DefaultPdfConfig(),
		Office: DefaultOfficeConfig(),
		Ocr:    DefaultOcrConfig(),
	}
}
