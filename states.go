package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// parseStates reads a comma separated list of states, e.g. "0, 4,8".
func parseStates(s string) ([]int, error) {
	var states []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid state %q: %s", f, err)
		}
		states = append(states, v)
	}
	return states, nil
}

// readStates takes the states from the first row of a CSV file. Cells that
// are not integers, like a label in the first column, are skipped.
func readStates(r io.Reader) ([]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	row, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("no states found: file is empty")
	}
	if err != nil {
		return nil, err
	}
	var states []int
	for _, cell := range row {
		v, err := strconv.Atoi(strings.TrimSpace(cell))
		if err != nil {
			continue
		}
		states = append(states, v)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("no valid states found in the first row")
	}
	return states, nil
}

func readStatesFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	states, err := readStates(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", path, err)
	}
	return states, nil
}
