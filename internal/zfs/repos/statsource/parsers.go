package statsource

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// kstatLine matches "name type value"; the type code is discarded.
var kstatLine = regexp.MustCompile(`^(\w+)\s+(\d+)\s+(\d+)$`)

// columnName matches a column in an io table header.
var columnName = regexp.MustCompile(`^[A-Za-z_]+$`)

// ParseNamedKstat parses a named kstat file (arcstats, zil) into name -> value.
// Lines that do not have exactly the three-field shape, and values that overflow
// uint64, are skipped without error.
func ParseNamedKstat(r io.Reader) (map[string]uint64, error) {
	out := make(map[string]uint64)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := kstatLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		v, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			continue
		}
		out[m[1]] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseIOTable parses a pool io kstat: the first line made only of column
// names is the header, the line after it holds the values in column order.
//
// Parsing is lenient. Extra values or columns are ignored, unparseable values
// are dropped, and a values line that precedes its header yields nothing.
func ParseIOTable(r io.Reader) (map[string]uint64, error) {
	out := make(map[string]uint64)
	scanner := bufio.NewScanner(r)

	var header []string
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if header == nil {
			if isHeader(fields) {
				header = fields
			}
			continue
		}
		n := len(header)
		if len(fields) < n {
			n = len(fields)
		}
		for i := 0; i < n; i++ {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				continue
			}
			out[header[i]] = v
		}
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isHeader(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !columnName.MatchString(f) {
			return false
		}
	}
	return true
}
