/*
Package config provides configuration management for docbridge with
multi-source support.

Sources are applied in order of increasing precedence:

	┌─────────────────────────────────────────────┐
	│          Command-line flags                 │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│   (DOCBRIDGE_*, optionally from .env)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Usage Examples

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/docbridge/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	global:
	  log_level: INFO
	  log_format: text
	  log_file: ""

	extraction:
	  max_string_length: 10MB
	  xml_output: false
	  charset: UTF-8
	  pdf:
	    ocr_strategy: AUTO
	    extract_annotation_text: true
	  office:
	    include_headers_and_footers: true
	  ocr:
	    density: 300
	    language: eng

	runtime:
	  bundle: ""
	  ocr: false
	  reader_buffer_size: 32KB

	embedded:
	  strategy: optimized
	  batch_size: 10
	  max_documents: 0

	sink:
	  directory: ./embedded
	  s3:
	    bucket: ""
	    prefix: extracted/
	    region: us-east-1
	    use_cargoship: false

	monitoring:
	  metrics:
	    enabled: false
	    port: 9090
	    path: /metrics
	    namespace: docbridge

Errors carry the CONFIG_LOAD, CONFIG_SAVE and INVALID_CONFIG codes of
pkg/errors.
*/
package config
