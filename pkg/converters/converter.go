package converters

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

const (
	// PageWidth and PageHeight are in points (A4-ish).
	PageWidth  = 595.0
	PageHeight = 842.0

	titleFontSize   = 14.0
	captionFontSize = 10.0
	marginX         = 72.0
	// Baselines measured from the bottom edge of the page.
	titleBaseline   = 800.0
	captionBaseline = 780.0

	fontFamily = "Helvetica"
	// unicodeFamily renders labels that the cp1252 core fonts cannot.
	unicodeFamily = "DejaVuSans"

	TitlePrefix = "Converted from: "
	Caption     = "This is a placeholder PDF generated from a .numbers file."
)

//go:embed fonts/DejaVuSans.ttf
var defaultUnicodeFont []byte

// ErrEmptyFileName is returned when a document is requested for an empty name.
var ErrEmptyFileName = errors.New("file name is required")

// DefaultDocumentDate pins PDF creation and modification dates so identical
// names produce byte-identical documents.
var DefaultDocumentDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DocumentConverter turns an uploaded file into a document.
type DocumentConverter interface {
	Convert(data []byte, name string) ([]byte, error)
}

// PlaceholderConverter renders a one-page PDF labeled with the source file
// name. The source bytes are never read.
type PlaceholderConverter struct {
	date        time.Time
	producer    string
	unicodeFont []byte
}

type Option func(*PlaceholderConverter)

// WithDocumentDate overrides the creation/modification date written into
// the PDF info dictionary.
func WithDocumentDate(t time.Time) Option {
	return func(c *PlaceholderConverter) {
		c.date = t
	}
}

// WithProducer sets the PDF /Producer entry.
func WithProducer(producer string) Option {
	return func(c *PlaceholderConverter) {
		c.producer = producer
	}
}

// WithUnicodeFont replaces the TrueType font used for names outside cp1252.
// The built-in DejaVu Sans has no CJK glyphs; such names still carry the
// exact text but display as missing glyphs unless a covering font is set.
func WithUnicodeFont(ttf []byte) Option {
	return func(c *PlaceholderConverter) {
		if len(ttf) > 0 {
			c.unicodeFont = ttf
		}
	}
}

func NewPlaceholderConverter(opts ...Option) *PlaceholderConverter {
	c := &PlaceholderConverter{
		date:        DefaultDocumentDate,
		producer:    "numbers2pdf",
		unicodeFont: defaultUnicodeFont,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert implements DocumentConverter.
func (c *PlaceholderConverter) Convert(_ []byte, name string) (out []byte, err error) {
	if name == "" {
		return nil, ErrEmptyFileName
	}
	// fpdf panics on some malformed font input
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("failed to render document for %s: %v", name, r)
		}
	}()

	title := TitlePrefix + name
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	doc.SetCompression(true)
	doc.SetCatalogSort(true)
	doc.SetCreationDate(c.date)
	doc.SetModificationDate(c.date)
	doc.SetTitle(basicPlane(title), true)
	doc.SetProducer(c.producer, true)
	doc.SetAutoPageBreak(false, 0)

	doc.AddPage()
	if label, ok := winANSI(title); ok {
		doc.SetFont(fontFamily, "", titleFontSize)
		doc.Text(marginX, PageHeight-titleBaseline, label)
	} else {
		doc.AddUTF8FontFromBytes(unicodeFamily, "", c.unicodeFont)
		doc.SetFont(unicodeFamily, "", titleFontSize)
		doc.Text(marginX, PageHeight-titleBaseline, basicPlane(title))
	}
	doc.SetFont(fontFamily, "", captionFontSize)
	doc.Text(marginX, PageHeight-captionBaseline, Caption)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render document for %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// winANSI encodes s for the core fonts, reporting whether every rune fits.
func winANSI(s string) (string, bool) {
	encoded, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil {
		return "", false
	}
	return encoded, true
}

// basicPlane replaces invalid UTF-8 and runes above U+FFFF with U+FFFD.
// fpdf's UTF-16 conversion and font tables only cover the basic plane.
func basicPlane(s string) string {
	out := []rune(strings.ToValidUTF8(s, "\uFFFD"))
	for i, r := range out {
		if r > 0xFFFF {
			out[i] = '\uFFFD'
		}
	}
	return string(out)
}
