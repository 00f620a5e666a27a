// Package export writes stored records in portable formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

// WriteCSV writes records with a header row. An empty slice still produces
// the header.
func WriteCSV(w io.Writer, records []scraper.Record) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(records) == 0 {
		if err := enc.EncodeHeader(scraper.Record{}); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", rec.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
