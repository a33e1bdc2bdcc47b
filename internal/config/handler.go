package config

import (
	"fmt"
	"os"
	"strings"
)

// Handler parses and serializes one config file format. Each handler
// self-registers its file extensions into the package-level registry via
// RegisterHandler, mirroring gaps' config.py Handler subclass registry.
type Handler interface {
	// Loads parses a config file's raw text into a Value tree.
	Loads(data []byte) (*Value, error)
	// Dumps serializes a Value tree back into the format's raw text.
	Dumps(v *Value) ([]byte, error)
}

var handlerRegistry = map[string]Handler{}

// RegisterHandler associates a Handler with one or more file extensions
// (without the leading dot, lowercase).
func RegisterHandler(h Handler, extensions ...string) {
	for _, ext := range extensions {
		handlerRegistry[strings.ToLower(ext)] = h
	}
}

// HandlerFor returns the Handler registered for a file extension
// (without the leading dot), or an error if no handler is registered.
func HandlerFor(extension string) (Handler, error) {
	h, ok := handlerRegistry[strings.ToLower(extension)]
	if !ok {
		known := make([]string, 0, len(handlerRegistry))
		for ext := range handlerRegistry {
			known = append(known, ext)
		}
		return nil, fmt.Errorf("config: no handler registered for extension %q (known: %v)", extension, known)
	}
	return h, nil
}

// extensionOf returns a file's extension without the leading dot, lowercased.
func extensionOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}

// Load reads path, selects a Handler by its file extension, and parses the
// contents into a Value tree.
func Load(path string) (*Value, error) {
	ext := extensionOf(path)
	if ext == "" {
		return nil, fmt.Errorf("config: file %q has no extension to select a format handler", path)
	}
	h, err := HandlerFor(ext)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	v, err := h.Loads(data)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return v, nil
}

// Dump serializes v using the Handler selected by path's extension and
// writes it to path.
func Dump(path string, v *Value) error {
	ext := extensionOf(path)
	h, err := HandlerFor(ext)
	if err != nil {
		return err
	}
	data, err := h.Dumps(v)
	if err != nil {
		return fmt.Errorf("config: serializing %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
