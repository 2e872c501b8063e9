package recipient

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// positional aliases VAR1..VARn map to columns 1..n
const positionalVars = 10

// Prepare builds recipients from raw rows. Rows with an empty first cell are
// discarded entirely; rows whose first cell contains no digits are counted in
// TotalRows but dropped from the valid set.
func Prepare(rows [][]string, headers []string) Prepared {
	return prepare(rows, headers, time.Now())
}

func prepare(rows [][]string, headers []string, now time.Time) Prepared {
	res := Prepared{Recipients: []Recipient{}}

	for _, cols := range rows {
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		res.TotalRows++

		address := NormalizeAddress(cols[0])
		if address == "" {
			continue
		}

		res.Recipients = append(res.Recipients, Recipient{
			Address:   address,
			Variables: buildVars(headers, cols, now),
			RowIndex:  res.TotalRows,
		})
	}

	res.ValidRecipients = len(res.Recipients)
	return res
}

// NormalizeAddress strips everything but digits
func NormalizeAddress(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize returns recipients with digit-only addresses, dropping those left
// without any digit. Variables and row indexes are kept.
func Normalize(list []Recipient) []Recipient {
	out := make([]Recipient, 0, len(list))
	for _, r := range list {
		r.Address = NormalizeAddress(r.Address)
		if r.Address == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseHeaders splits a comma separated header list, dropping blanks
func ParseHeaders(s string) []string {
	var headers []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	return headers
}

func buildVars(headers, cols []string, now time.Time) map[string]string {
	vars := make(map[string]string, len(headers)+2*positionalVars+3)

	for i, h := range headers {
		vars[h] = column(cols, i+1)
	}

	for i := 1; i <= positionalVars; i++ {
		v := column(cols, i)
		vars["VAR"+strconv.Itoa(i)] = v
		vars["var"+strconv.Itoa(i)] = v
	}

	vars["date"] = now.Format("2006-01-02")
	vars["time"] = now.Format("15:04:05")
	vars["random"] = strconv.Itoa(rand.IntN(1_000_000))

	return vars
}

func column(cols []string, i int) string {
	if i < len(cols) {
		return strings.TrimSpace(cols[i])
	}
	return ""
}
