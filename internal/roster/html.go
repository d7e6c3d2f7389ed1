package roster

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseHTML reads a "publish to web" sheet export. Only <td> cells are data;
// <th> cells are the sheet's row and column labels. The first row carrying
// data cells holds the column headings and is skipped like a CSV header.
func parseHTML(r io.Reader) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster HTML: %w", err)
	}

	var rows [][]string
	headerSeen := false
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		if !headerSeen {
			headerSeen = true
			return
		}
		fields := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			fields = append(fields, strings.TrimSpace(cell.Text()))
		})
		if strings.Join(fields, "") == "" {
			return
		}
		rows = append(rows, fields)
	})
	return rows, nil
}
