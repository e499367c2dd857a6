package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is what a Parser pulls out of a PDF. Missing metadata is left
// empty.
type Document struct {
	Content          string
	Title            string
	Author           string
	CreationDate     string
	ModificationDate string
	NumberOfPages    int
}

// Parser turns raw PDF bytes into a Document.
type Parser interface {
	Parse(data []byte) (*Document, error)
}

// PDFParser is the Parser backed by github.com/ledongthuc/pdf.
type PDFParser struct{}

var ErrEmptyDocument = errors.New("empty document")

// Parse concatenates the plain text of every page in order. A page whose
// text cannot be decoded contributes an empty string. Metadata comes from
// the trailer's Info dictionary.
func (PDFParser) Parse(data []byte) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	// The reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	doc = &Document{NumberOfPages: r.NumPage()}

	var content strings.Builder
	for i := 1; i <= doc.NumberOfPages; i++ {
		content.WriteString(pageText(r.Page(i)))
	}
	doc.Content = content.String()

	info := r.Trailer().Key("Info")
	doc.Title = info.Key("Title").Text()
	doc.Author = info.Key("Author").Text()
	doc.CreationDate = info.Key("CreationDate").Text()
	doc.ModificationDate = info.Key("ModDate").Text()

	return doc, nil
}

func pageText(p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
