package parser

import "errors"

var (
	// ErrMalformedExport is returned when the top-level container cannot be decoded.
	ErrMalformedExport = errors.New("malformed export")

	// ErrUnsupportedSource is returned by ForSource for an unknown source.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrNoRoot indicates a ChatGPT mapping without a parentless node.
	ErrNoRoot = errors.New("conversation mapping has no root node")

	// ErrDanglingNode indicates a ChatGPT node referencing a missing child.
	ErrDanglingNode = errors.New("conversation mapping references a missing node")

	// ErrMissingID indicates a conversation without an identifier.
	ErrMissingID = errors.New("conversation has no identifier")
)
