package marshal

// NativeMainClass hosts the static entry points of the parsing runtime.
const NativeMainClass = "docbridge.NativeMain"

// Static operations of NativeMainClass.
const (
	OpExtractEmbedded          = "extractEmbedded"
	OpExtractEmbeddedFromBytes = "extractEmbeddedFromBytes"
	OpExtractEmbeddedOptimized = "extractEmbeddedOptimized"
	OpDetect                   = "detect"
	OpParseFileToString        = "parseFileToString"
	OpParseBytesToString       = "parseBytesToString"
	OpParseFile                = "parseFile"
	OpParseBytes               = "parseBytes"
)
