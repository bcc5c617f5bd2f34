package converters

import "strings"

const (
	SourceExtension = ".numbers"
	TargetExtension = ".pdf"
)

// OutputName derives the document name from the uploaded file name.
//
// Every literal occurrence of ".numbers" is replaced, wherever it appears:
// "report.numbers.backup.numbers" becomes "report.pdf.backup.pdf", and
// names without the substring pass through unchanged.
func OutputName(name string) string {
	return strings.ReplaceAll(name, SourceExtension, TargetExtension)
}
