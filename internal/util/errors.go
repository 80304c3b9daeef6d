package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in document")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrEmptyFile         = errors.New("uploaded file is empty")
)
