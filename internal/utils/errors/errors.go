package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrPathNotAccessible = errors.New("path is not accessible")

	// Compression Errors
	ErrCompressionFailed      = errors.New("compression failed")
	ErrUnsupportedCompression = errors.New("unsupported compression format")
	ErrInsufficientDiskSpace  = errors.New("not enough disk space to write extracted partitions")

	// Extraction Errors
	ErrExtractionFailed = errors.New("extraction failed")
	ErrOutputExists     = errors.New("output file already exists")

	// File Errors
	ErrFileWriteError = errors.New("error writing to file")

	// Manifest Errors
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")
	ErrManifestEncode          = errors.New("error encoding manifest")

	// Hash Errors
	ErrInvalidHasher = errors.New("invalid hasher")

	// VirusTotal API Errors
	ErrAPIKeyMissing         = errors.New("API key is required")
	ErrAPIRateLimitExceeded  = errors.New("API rate limit exceeded")
	ErrAPICommunicationError = errors.New("error communicating with VirusTotal API")

	// Configuration Errors
	ErrConfigInvalid = errors.New("invalid configuration")
)
