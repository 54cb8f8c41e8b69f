package pdfinspect

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const headerWindow = 1024

var (
	ErrNotPDF     = errors.New("not a pdf document")
	ErrUnreadable = errors.New("unreadable pdf document")
)

// Info summarizes a parsed PDF.
type Info struct {
	Pages int
	// HasText reports whether the first page already carries extractable text.
	HasText bool
}

// Inspect parses data with github.com/ledongthuc/pdf and reports its page count.
// Malformed input yields ErrNotPDF or ErrUnreadable, never a panic.
func Inspect(data []byte) (info Info, err error) {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return Info{}, ErrNotPDF
	}

	defer func() {
		if r := recover(); r != nil {
			info = Info{}
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return Info{}, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return Info{Pages: pages, HasText: firstPageHasText(reader)}, nil
}

func firstPageHasText(reader *pdf.Reader) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	page := reader.Page(1)
	if page.V.IsNull() {
		return false
	}
	for _, t := range page.Content().Text {
		if strings.TrimSpace(t.S) != "" {
			return true
		}
	}
	return false
}
