package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// parseMessagesCSV reads a message list from a CSV with a header row.
// The "phone" column is required; "variable1".."variable10" and
// "image_url" are optional. Rows with an empty phone are skipped.
func parseMessagesCSV(r io.Reader) ([]model.Message, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.New("missing header row")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["phone"]; !ok {
		return nil, errors.New(`missing required column "phone"`)
	}

	var msgs []model.Message
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		phone := strings.TrimSpace(field(record, cols, "phone"))
		if phone == "" {
			continue
		}

		msg := model.Message{
			Phone:    phone,
			ImageURL: strings.TrimSpace(field(record, cols, "image_url")),
		}
		for i := 1; i <= 10; i++ {
			msg.SetVariable(i, strings.TrimSpace(field(record, cols, fmt.Sprintf("variable%d", i))))
		}

		msgs = append(msgs, msg)
	}

	if len(msgs) == 0 {
		return nil, errors.New("no rows with a phone number")
	}
	return msgs, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
