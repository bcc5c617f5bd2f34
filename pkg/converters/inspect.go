package converters

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DocumentInfo is what Inspect reads back from a PDF.
type DocumentInfo struct {
	Pages int
	Title string
	Text  string
}

// Inspect parses a PDF and returns its page count, title and plain text.
func Inspect(data []byte) (*DocumentInfo, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	info := &DocumentInfo{Pages: pdfReader.NumPage()}

	trailer := pdfReader.Trailer()
	if !trailer.IsNull() {
		if title := trailer.Key("Info").Key("Title"); !title.IsNull() {
			info.Title = title.Text()
		}
	}

	var text strings.Builder
	for i := 1; i <= info.Pages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := pageText(page)
		if err != nil {
			return nil, fmt.Errorf("failed to get text from page %d: %w", i, err)
		}
		text.WriteString(content)
	}
	info.Text = text.String()

	return info, nil
}

type decodeFunc func(pdf.Value) string

func rawString(v pdf.Value) string { return v.RawString() }

// pageText walks the page's text operators, decoding each string with the
// font selected by the preceding Tf.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed content stream: %v", r)
		}
	}()

	decoders := make(map[string]decodeFunc)
	for _, name := range page.Fonts() {
		decoders[name] = fontDecoder(page.Font(name))
	}

	var b strings.Builder
	decode := decodeFunc(rawString)
	show := func(v pdf.Value) {
		if v.Kind() == pdf.String {
			b.WriteString(decode(v))
		}
	}

	pdf.Interpret(page.V.Key("Contents"), func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		if n == 0 {
			if op == "T*" {
				b.WriteString("\n")
			}
			return
		}

		switch op {
		case "Tf":
			if d, ok := decoders[args[0].Name()]; ok {
				decode = d
			} else {
				decode = rawString
			}
		case "Tj", "'", "\"":
			show(args[n-1])
		case "TJ":
			for i := 0; i < args[0].Len(); i++ {
				show(args[0].Index(i))
			}
		}
	})
	return b.String(), nil
}

// fontDecoder picks the string decoding for font. Identity-H strings from
// embedded UTF-8 fonts are UTF-16BE code points; they are decoded directly
// because the reader's ToUnicode range handling only adjusts the low byte.
func fontDecoder(font pdf.Font) decodeFunc {
	if font.V.Key("Encoding").Name() == "Identity-H" {
		return func(v pdf.Value) string { return v.TextFromUTF16() }
	}
	enc := font.Encoder()
	return func(v pdf.Value) string { return enc.Decode(v.RawString()) }
}
