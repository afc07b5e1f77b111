package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/pkg/logger"
)

var (
	// ErrUnsupportedFormat rejects declared MIME types outside the supported
	// set before any parsing happens.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed wraps structural parse failures. Partial garbage is
	// never returned in its place.
	ErrExtractionFailed = errors.New("extraction failed")
)

const (
	MimePDF   = "application/pdf"
	MimeDocx  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePlain = "text/plain"
	MimeHTML  = "text/html"
)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// Extractor converts raw uploaded files into normalized text.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns whitespace-normalized text for the declared MIME type.
// Content-type parameters ("; charset=utf-8") are ignored.
func (e *Extractor) Extract(fileBytes []byte, declaredMimeType string) (string, error) {
	mimeType, _, err := mime.ParseMediaType(declaredMimeType)
	if err != nil {
		mimeType = strings.ToLower(strings.TrimSpace(declaredMimeType))
	}

	var text string
	switch mimeType {
	case MimePDF:
		text, err = extractPDF(fileBytes)
	case MimeDocx:
		text, err = extractDocx(fileBytes)
	case MimeHTML:
		text, err = extractHTML(fileBytes)
	case MimePlain:
		text = string(fileBytes)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, declaredMimeType)
	}

	if err != nil {
		return "", err
	}

	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return "", fmt.Errorf("%w: no text content", ErrExtractionFailed)
	}

	logger.Debug("Text extracted",
		zap.String("mime_type", mimeType),
		zap.Int("chars", len(normalized)),
	)

	return normalized, nil
}

func extractPDF(fileBytes []byte) (string, error) {
	doc, err := fitz.NewFromMemory(fileBytes)
	if err != nil {
		return "", fmt.Errorf("%w: malformed PDF: %v", ErrExtractionFailed, err)
	}
	defer doc.Close()

	var parts []string
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("%w: PDF page %d unreadable: %v", ErrExtractionFailed, i+1, err)
		}
		if strings.TrimSpace(pageText) != "" {
			parts = append(parts, pageText)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// extractDocx pulls paragraph text from the word/document.xml member of the
// OOXML package.
func extractDocx(fileBytes []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return "", fmt.Errorf("%w: malformed OOXML package: %v", ErrExtractionFailed, err)
	}

	var docXML []byte
	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: cannot open document.xml: %v", ErrExtractionFailed, err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: cannot read document.xml: %v", ErrExtractionFailed, err)
		}
		break
	}

	if docXML == nil {
		return "", fmt.Errorf("%w: package has no word/document.xml", ErrExtractionFailed)
	}

	return docxText(docXML)
}

func docxText(docXML []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var builder strings.Builder
	var inText bool

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed document.xml: %v", ErrExtractionFailed, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br", "tab":
				builder.WriteString(" ")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				builder.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				builder.Write(t)
			}
		}
	}

	return builder.String(), nil
}

func extractHTML(fileBytes []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fileBytes))
	if err != nil {
		return "", fmt.Errorf("%w: malformed HTML: %v", ErrExtractionFailed, err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return doc.Find("body").Text(), nil
}

// normalizeWhitespace collapses space runs and excess blank lines without
// touching the remaining bytes.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = newlineRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
