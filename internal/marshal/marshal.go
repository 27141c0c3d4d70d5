// Package marshal builds the foreign parser configuration objects.
//
// Each record becomes one foreign object: the class is constructed and one
// setter is dispatched per field. Values are not validated here; the
// foreign side is the authority and a rejected value surfaces as
// CONFIG_REJECTED.
package marshal

import (
	stderrors "errors"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/types"
)

// Foreign class names of the three configuration records.
const (
	PdfConfigClass    = "org.apache.tika.parser.pdf.PDFParserConfig"
	OfficeConfigClass = "org.apache.tika.parser.microsoft.OfficeParserConfig"
	OcrConfigClass    = "org.apache.tika.parser.ocr.TesseractOCRConfig"
)

type setter struct {
	method string
	value  foreign.Value
}

// Configs holds the three foreign configuration objects in call order.
type Configs struct {
	Pdf    foreign.Ref
	Office foreign.Ref
	Ocr    foreign.Ref
}

// Args returns the objects in the order the foreign operations take them.
func (c Configs) Args() []foreign.Value {
	return []foreign.Value{c.Pdf, c.Office, c.Ocr}
}

// Pdf builds a PDFParserConfig from cfg.
func Pdf(env foreign.Env, cfg types.PdfConfig) (foreign.Ref, error) {
	return build(env, PdfConfigClass, []setter{
		{"setExtractInlineImages", cfg.ExtractInlineImages},
		{"setExtractUniqueInlineImagesOnly", cfg.ExtractUniqueInlineImagesOnly},
		{"setExtractMarkedContent", cfg.ExtractMarkedContent},
		{"setExtractAnnotationText", cfg.ExtractAnnotationText},
		{"setOcrStrategy", cfg.OcrStrategy.String()},
	})
}

// Office builds an OfficeParserConfig from cfg.
func Office(env foreign.Env, cfg types.OfficeConfig) (foreign.Ref, error) {
	return build(env, OfficeConfigClass, []setter{
		{"setExtractMacros", cfg.ExtractMacros},
		{"setIncludeDeletedContent", cfg.IncludeDeletedContent},
		{"setIncludeMoveFromContent", cfg.IncludeMoveFromContent},
		{"setIncludeShapeBasedContent", cfg.IncludeShapeBasedContent},
		{"setIncludeHeadersAndFooters", cfg.IncludeHeadersAndFooters},
		{"setIncludeMissingRows", cfg.IncludeMissingRows},
		{"setIncludeSlideNotes", cfg.IncludeSlideNotes},
		{"setIncludeSlideMasterContent", cfg.IncludeSlideMasterContent},
		{"setConcatenatePhoneticRuns", cfg.ConcatenatePhoneticRuns},
		{"setExtractAllAlternativesFromMSG", cfg.ExtractAllAlternativesFromMSG},
	})
}

// Ocr builds a TesseractOCRConfig from cfg.
func Ocr(env foreign.Env, cfg types.OcrConfig) (foreign.Ref, error) {
	return build(env, OcrConfigClass, []setter{
		{"setDensity", cfg.Density},
		{"setDepth", cfg.Depth},
		{"setTimeoutSeconds", cfg.TimeoutSeconds},
		{"setEnableImagePreprocessing", cfg.EnableImagePreprocessing},
		{"setApplyRotation", cfg.ApplyRotation},
		{"setLanguage", cfg.Language},
	})
}

// All builds the PDF, Office and OCR objects, in that order.
func All(env foreign.Env, cfg types.ExtractionConfig) (Configs, error) {
	var (
		c   Configs
		err error
	)
	if c.Pdf, err = Pdf(env, cfg.Pdf); err != nil {
		return Configs{}, err
	}
	if c.Office, err = Office(env, cfg.Office); err != nil {
		return Configs{}, err
	}
	if c.Ocr, err = Ocr(env, cfg.Ocr); err != nil {
		return Configs{}, err
	}
	return c, nil
}

func build(env foreign.Env, class string, setters []setter) (foreign.Ref, error) {
	obj, err := env.New(class)
	if err != nil {
		return nil, classify(err, class, "<init>")
	}
	if obj == nil {
		return nil, classify(foreign.ErrNullReference, class, "<init>")
	}

	for _, s := range setters {
		if err := foreign.CallVoid(env, obj, s.method, s.value); err != nil {
			return nil, classify(err, class, s.method).WithDetail("value", s.value)
		}
	}
	return obj, nil
}

func classify(err error, class, method string) *errors.BridgeError {
	var exc *foreign.Exception
	switch {
	case stderrors.Is(err, foreign.ErrNoSuchClass), stderrors.Is(err, foreign.ErrNoSuchMethod):
		return errors.NewError(errors.ErrCodeRuntimeSetup, "foreign configuration surface is incomplete").
			WithComponent("marshal").
			WithOperation(method).
			WithContext("class", class).
			WithCause(err)
	case stderrors.As(err, &exc):
		return errors.NewError(errors.ErrCodeConfigRejected, exc.Error()).
			WithComponent("marshal").
			WithOperation(method).
			WithContext("class", class).
			WithCause(err)
	}

	wrapped := foreign.Wrap("marshal", method, err)
	var bridgeErr *errors.BridgeError
	stderrors.As(wrapped, &bridgeErr)
	return bridgeErr.WithContext("class", class)
}
