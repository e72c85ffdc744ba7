package feedback

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"
)

// SummaryPDF renders a review summary for download. Anonymity has already
// been applied to the entries by the time they reach here.
func SummaryPDF(summary Summary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "360 Feedback Summary")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	name := summary.SubjectName
	if name == "" {
		name = summary.SubjectID
	}
	pdf.Cell(0, 8, fmt.Sprintf("Subject: %s", name))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Feedback entries: %d", summary.FeedbackCount))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Average ratings")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	criteria := make([]string, 0, len(summary.AverageRatings))
	for criterion := range summary.AverageRatings {
		criteria = append(criteria, criterion)
	}
	sort.Strings(criteria)
	for _, criterion := range criteria {
		pdf.Cell(0, 7, fmt.Sprintf("%s: %.1f / %d", criterion, summary.AverageRatings[criterion], RatingMax))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Comments")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	for _, entry := range summary.Entries {
		author := entry.AuthorName
		if author == "" {
			author = "Anonymous"
		}
		pdf.MultiCell(0, 6, fmt.Sprintf("[%s] %s: %s", entry.Type, author, entry.Content), "", "L", false)
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
