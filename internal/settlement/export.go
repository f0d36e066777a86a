package settlement

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var danish = message.NewPrinter(language.Danish)

// WriteCSV renders a settlement's lines for operator review. Amounts use
// Danish number formatting; quantities keep their 3-decimal precision.
func WriteCSV(w io.Writer, s Settlement) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Line", "Source", "Description", "Quantity (kWh)", "Unit Price", "Amount", "Tax", "External ID"}); err != nil {
		return err
	}
	for _, line := range s.Lines {
		if err := writer.Write([]string{
			fmt.Sprintf("%d", line.Number),
			string(line.Source),
			line.Description,
			danish.Sprintf("%.3f", line.Quantity.Float()),
			danish.Sprintf("%.5f", line.UnitPrice),
			danish.Sprintf("%.2f", line.Amount.Float()),
			danish.Sprintf("%.2f", line.TaxAmount.Float()),
			line.ExternalID,
		}); err != nil {
			return err
		}
	}
	totals := [][]string{
		{"", "", "Net total", "", "", danish.Sprintf("%.2f", s.NetTotal.Float()), "", ""},
		{"", "", "Tax total", "", "", "", danish.Sprintf("%.2f", s.TaxTotal.Float()), ""},
		{"", "", "Gross total", "", "", danish.Sprintf("%.2f", s.GrossTotal.Float()), "", ""},
	}
	for _, record := range totals {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
