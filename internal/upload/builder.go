package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default size ceilings for file-bearing operations, in bytes.
const (
	MaxAudioFileBytes int64 = 25 * 1024 * 1024
	MaxImageFileBytes int64 = 4 * 1024 * 1024
)

// Category names a file-format allow-list.
type Category string

const (
	CategoryAudio Category = "audio"
	CategoryImage Category = "image"
)

var allowedExtensions = map[Category][]string{
	CategoryAudio: {"mp3", "mp4", "mpeg", "mpga", "m4a", "wav", "webm"},
	CategoryImage: {"png"},
}

// SupportedExtensions returns the allow-list for a category.
func SupportedExtensions(c Category) []string {
	return append([]string(nil), allowedExtensions[c]...)
}

// FileRef is the validated value object that crosses from the builder to
// the transport. It carries metadata only; the handle is opened at send
// time under scoped acquisition.
type FileRef struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
	Category    Category
}

// Part is one named entry of a multipart body: either a scalar field value
// or a file reference. Parts are never mutated after insertion.
type Part struct {
	Field string
	Value string
	File  *FileRef
}

// FileAccessError reports a file that is missing, not a regular file, or
// not readable.
type FileAccessError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("file %q: %s", e.Path, e.Reason)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// EmptyFileError reports a zero-byte file.
type EmptyFileError struct {
	Path string
}

func (e *EmptyFileError) Error() string {
	return fmt.Sprintf("file %q is empty", e.Path)
}

// FileTooLargeError reports a file over the configured size ceiling.
type FileTooLargeError struct {
	Path string
	Size int64
	Max  int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %q is %d bytes, maximum allowed is %d bytes", e.Path, e.Size, e.Max)
}

// UnsupportedFormatError reports an extension outside a category allow-list.
type UnsupportedFormatError struct {
	Path      string
	Extension string
	Category  Category
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("file %q has unsupported format %q for %s uploads, supported formats: %s",
		e.Path, e.Extension, e.Category, strings.Join(e.Supported, ", "))
}

// Builder accumulates named multipart parts, validating files at insertion
// time rather than at build time. Only file metadata is inspected; contents
// are never read into memory here.
type Builder struct {
	maxFileSize int64
	parts       []Part
	totalSize   int64
}

// NewBuilder creates a builder whose file parts must not exceed maxFileSize
// bytes each. A zero or negative max disables the size ceiling.
func NewBuilder(maxFileSize int64) *Builder {
	return &Builder{maxFileSize: maxFileSize}
}

// AddField appends a scalar part. Chainable.
func (b *Builder) AddField(field, value string) *Builder {
	b.parts = append(b.parts, Part{Field: field, Value: value})
	return b
}

// AddFile validates and appends a file part. filename defaults to the path
// base, contentType may be empty (detected at send time), and category, when
// non-empty, enforces the extension allow-list.
func (b *Builder) AddFile(field, path, filename, contentType string, category Category) error {
	ref, err := Validate(path, b.maxFileSize, category)
	if err != nil {
		return err
	}
	if filename != "" {
		ref.Filename = filename
	}
	if contentType != "" {
		ref.ContentType = contentType
	}
	b.parts = append(b.parts, Part{Field: field, File: ref})
	b.totalSize += ref.Size
	return nil
}

// Build returns the accumulated parts. Repeatable; the returned slice is a
// copy and building has no side effects on the builder.
func (b *Builder) Build() []Part {
	out := make([]Part, len(b.parts))
	copy(out, b.parts)
	return out
}

// Clear resets all accumulated parts and the running size total.
func (b *Builder) Clear() {
	b.parts = nil
	b.totalSize = 0
}

// TotalRequestSize returns the byte total of all file parts added so far.
func (b *Builder) TotalRequestSize() int64 { return b.totalSize }

// Validate checks a file path against the existence, type, readability,
// size, and format constraints and returns the metadata value object. The
// probe handle is closed immediately; no contents are read.
func Validate(path string, maxSize int64, category Category) (*FileRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FileAccessError{Path: path, Reason: "does not exist", Err: err}
		}
		return nil, &FileAccessError{Path: path, Reason: "cannot stat", Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &FileAccessError{Path: path, Reason: "not a regular file"}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Reason: "not readable", Err: err}
	}
	f.Close()

	if info.Size() == 0 {
		return nil, &EmptyFileError{Path: path}
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, &FileTooLargeError{Path: path, Size: info.Size(), Max: maxSize}
	}

	if category != "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if !extensionAllowed(category, ext) {
			return nil, &UnsupportedFormatError{
				Path:      path,
				Extension: ext,
				Category:  category,
				Supported: SupportedExtensions(category),
			}
		}
	}

	return &FileRef{
		Path:     path,
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Category: category,
	}, nil
}

func extensionAllowed(category Category, ext string) bool {
	for _, allowed := range allowedExtensions[category] {
		if ext == allowed {
			return true
		}
	}
	return false
}
