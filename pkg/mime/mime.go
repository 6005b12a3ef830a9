package mime

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// returns the MIME type of input and a new reader containing the whole data from input
func DetectReader(input io.Reader) (string, io.Reader, error) {
	header := new(bytes.Buffer)
	reader := io.TeeReader(input, header)

	_, err := io.CopyN(io.Discard, reader, sniffLen)
	// io.UnexpectedEOF means input is smaller than sniffLen, it's not an error in this case
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}

	ctype := mimetype.Detect(header.Bytes()).String()
	return ctype, io.MultiReader(header, input), nil
}

// Format decides how a rule document is encoded. The file extension wins when
// it is known, otherwise the content is sniffed: json stays json and any other
// text is treated as yaml. An empty string means the data is not text at all.
func Format(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}

	m := mimetype.Detect(data)
	if m.Is("application/json") {
		return FormatJSON
	}
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return FormatYAML
		}
	}
	return ""
}

// Extension returns the file extension used when writing a document of format f.
func Extension(f string) string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}
