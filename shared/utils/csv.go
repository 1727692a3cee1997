package utils

import (
	"encoding/csv"
	"io"
	"strings"
)

// ParseEmails reads delimited, header-less records and keeps the first field
// of each row when it looks like an email address. Rows whose first field
// lacks an '@' are silently discarded; this is a best-effort filter, not
// validation.
func ParseEmails(r io.Reader, delimiter rune) ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var emails []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		email := strings.TrimSpace(record[0])
		if !strings.Contains(email, "@") {
			continue
		}
		emails = append(emails, email)
	}
	return emails, nil
}
