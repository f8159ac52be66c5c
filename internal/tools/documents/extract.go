// Package documents extracts plain text from uploaded files so they can be
// added to a conversation session.
package documents

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"ghostbot/internal/logging"
	"ghostbot/internal/usage"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxBytes is the upload cap.
const DefaultMaxBytes = 5 << 20

var (
	ErrTooLarge    = errors.New("document too large")
	ErrEmpty       = errors.New("document has no readable text")
	ErrUnsupported = errors.New("unsupported document format")
)

// Extractor converts document bytes to text, dispatching on the file
// extension. Unknown extensions are decoded as UTF-8 text.
type Extractor struct {
	maxBytes int64
}

// NewExtractor creates an Extractor. maxBytes <= 0 uses DefaultMaxBytes.
func NewExtractor(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

// MaxBytes returns the upload cap.
func (e *Extractor) MaxBytes() int64 {
	return e.maxBytes
}

// Allowed reports whether a file of size bytes may be processed.
func (e *Extractor) Allowed(size int64) bool {
	return size <= e.maxBytes
}

// Extract returns the text content of the named file.
func (e *Extractor) Extract(name string, data []byte) (text string, err error) {
	if !e.Allowed(int64(len(data))) {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), e.maxBytes)
	}

	// Third-party parsers may panic on malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract %s: panic: %v", name, r)
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		usage.RecordToolCall("extract_document", status)
	}()

	ext := strings.ToLower(path.Ext(name))
	logging.ToolsDebug("Extracting %s (%s, %d bytes)", name, ext, len(data))

	switch ext {
	case ".pdf":
		text, err = extractPDF(data)
	case ".docx":
		text, err = extractDOCX(data)
	case ".pptx":
		text, err = extractPPTX(data)
	case ".xlsx":
		text, err = extractXLSX(data)
	case ".csv":
		text, err = extractCSV(data)
	case ".xls", ".doc", ".ppt":
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	default:
		text = strings.ToValidUTF8(string(data), "")
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	return renderTable(rows), nil
}

// renderTable aligns rows into columns.
func renderTable(rows [][]string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
	return buf.String()
}

// ooxmlText collects the character data of every textTag element in an
// OOXML part, starting a new line at each paraTag.
func ooxmlText(r io.Reader, textTag, paraTag string) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textTag {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return zr, nil
}

func readPart(f *zip.File, textTag, paraTag string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return ooxmlText(rc, textTag, paraTag)
}

func extractDOCX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return readPart(f, "t", "p")
		}
	}
	return "", fmt.Errorf("%w: missing word/document.xml", ErrUnsupported)
}

func extractPPTX(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	slides := numberedParts(zr, "ppt/slides/slide")
	if len(slides) == 0 {
		return "", fmt.Errorf("%w: no slides", ErrUnsupported)
	}
	var parts []string
	for _, f := range slides {
		text, err := readPart(f, "t", "p")
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// numberedParts returns prefixN.xml entries ordered by N.
func numberedParts(zr *zip.Reader, prefix string) []*zip.File {
	type numbered struct {
		n int
		f *zip.File
	}
	var found []numbered
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, prefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Name, prefix), ".xml"))
		if err != nil {
			continue
		}
		found = append(found, numbered{n, f})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]*zip.File, len(found))
	for i, nf := range found {
		out[i] = nf.f
	}
	return out
}
