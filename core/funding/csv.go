package funding

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	csvFieldNames   = []string{"country_name", "country", "name", "url"}
	exportDelimiter = ';'
	sniffDelimiters = []rune{';', ',', '\t'}
	sniffSampleSize = 1024
)

type csvRecord struct {
	countryName, country, name, url string
}

// sniffDelimiter returns the candidate delimiter found the most often in the sample.
func sniffDelimiter(sample string) rune {
	if idx := strings.IndexAny(sample, "\r\n"); idx >= 0 {
		sample = sample[:idx]
	}
	best, bestCount := exportDelimiter, 0
	for _, d := range sniffDelimiters {
		if n := strings.Count(sample, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// readCSV reads financing rows, skipping the header line.
func readCSV(r io.Reader) ([]csvRecord, error) {
	br := bufio.NewReaderSize(r, sniffSampleSize)
	sample, err := br.Peek(sniffSampleSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.Wrap(err, "reading csv sample")
	}

	rdr := csv.NewReader(br)
	rdr.Comma = sniffDelimiter(strings.TrimPrefix(string(sample), "\ufeff"))
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true

	var records []csvRecord
	header := true
	for {
		row, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading csv")
		}
		if header {
			header = false
			continue
		}
		if len(row) < 3 {
			return nil, errors.Errorf("line %d: expected %d fields", len(records)+2, len(csvFieldNames))
		}
		rec := csvRecord{
			countryName: strings.TrimSpace(row[0]),
			country:     strings.TrimSpace(row[1]),
			name:        strings.TrimSpace(row[2]),
		}
		if len(row) > 3 {
			rec.url = strings.TrimSpace(row[3])
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeCSV(w io.Writer, rows []CountryFinancing) error {
	wr := csv.NewWriter(w)
	wr.Comma = exportDelimiter
	if err := wr.Write(csvFieldNames); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, r := range rows {
		if err := wr.Write([]string{r.CountryName, r.CountryISO, r.Name, r.URL}); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	wr.Flush()
	return errors.Wrap(wr.Error(), "flushing csv")
}
