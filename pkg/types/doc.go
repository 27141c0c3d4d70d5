/*
Package types defines the value types shared by every layer of docbridge.

The bridge moves data across an opaque boundary into a foreign document
parsing runtime and back. Everything that crosses that boundary in native
form is defined here:

	ExtractionConfig    PDF, Office and OCR option records sent by setter dispatch
	Metadata            multi-valued document metadata returned by the runtime
	EmbeddedDocument    one sub-document pulled out of a container file
	EmbeddedExtractResult
	                    the ordered documents of one extraction plus parent metadata

All of these are plain values. Once a result has been unmarshaled nothing in
it aliases foreign memory, and the caller owns it exclusively.

# Accessors

EmbeddedDocument and EmbeddedExtractResult carry small query helpers
(IsImage, IsDocument, Images, NonImages, TotalSize) used by the CLI and
the sinks. They never touch the runtime.

# Interfaces

MetricsRecorder and DocumentSink decouple the bridge packages from the
Prometheus collector and the storage sinks so the core can be exercised with
nil recorders and in-memory sinks in tests.
*/
package types
