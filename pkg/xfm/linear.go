package xfm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/geometry"
)

// EncodeLinear writes m, a 4x4 homogeneous matrix, as a single linear
// transform. Only the top three rows are stored.
func EncodeLinear(w io.Writer, m mat.Matrix, comments ...string) error {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return fmt.Errorf("linear transform must be 4x4, got %dx%d", r, c)
	}

	bw := bufio.NewWriter(w)
	writeHeader(bw, comments)
	fmt.Fprintln(bw, "Transform_Type = Linear;")
	fmt.Fprintln(bw, "Linear_Transform =")
	for i := 0; i < 3; i++ {
		row := make([]float64, 4)
		for j := range row {
			row[j] = m.At(i, j)
		}
		end := ""
		if i == 2 {
			end = ";"
		}
		fmt.Fprintf(bw, " %s%s\n", formatRow(row...), end)
	}
	return bw.Flush()
}

// DecodeLinear parses a transform file holding exactly one linear
// transform. An Invert_Flag of True is applied before returning.
func DecodeLinear(r io.Reader) (*mat.Dense, error) {
	stmts, err := parse(r)
	if err != nil {
		return nil, err
	}

	var kinds []string
	for _, s := range stmts {
		if s.key == "Transform_Type" {
			kinds = append(kinds, s.value)
		}
	}
	switch {
	case len(kinds) == 0:
		return nil, fmt.Errorf("%w: no Transform_Type", ErrMalformed)
	case len(kinds) > 1:
		return nil, fmt.Errorf("%w: %d concatenated transforms", ErrUnsupported, len(kinds))
	case kinds[0] != "Linear":
		return nil, fmt.Errorf("%w: transform type %s", ErrUnsupported, kinds[0])
	}

	values, ok := lookup(stmts, "Linear_Transform")
	if !ok {
		return nil, fmt.Errorf("%w: no Linear_Transform", ErrMalformed)
	}
	fields := strings.Fields(values)
	if len(fields) != 12 {
		return nil, fmt.Errorf("%w: Linear_Transform has %d values, want 12", ErrMalformed, len(fields))
	}

	m := geometry.Identity()
	for k, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		m.Set(k/4, k%4, v)
	}

	if flag, ok := lookup(stmts, "Invert_Flag"); ok && strings.EqualFold(flag, "True") {
		inv, ok := geometry.Invert(m)
		if !ok {
			return nil, fmt.Errorf("%w: inverted transform is singular", ErrMalformed)
		}
		m = inv
	}
	return m, nil
}

type statement struct {
	key   string
	value string
}

// parse splits a transform file into its "key = value;" statements after
// checking the header and dropping '%' comment lines.
func parse(r io.Reader) ([]statement, error) {
	sc := bufio.NewScanner(r)

	sawHeader := false
	var body strings.Builder
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !sawHeader {
			if line == "" {
				continue
			}
			if line != header {
				return nil, fmt.Errorf("%w: missing %q header", ErrMalformed, header)
			}
			sawHeader = true
			continue
		}
		if strings.HasPrefix(line, "%") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading transform file: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}

	var stmts []statement
	for _, chunk := range strings.Split(body.String(), ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		key, value, ok := strings.Cut(chunk, "=")
		if !ok {
			return nil, fmt.Errorf("%w: statement without '=': %q", ErrMalformed, chunk)
		}
		stmts = append(stmts, statement{key: strings.TrimSpace(key), value: strings.TrimSpace(value)})
	}
	return stmts, nil
}

func lookup(stmts []statement, key string) (string, bool) {
	for _, s := range stmts {
		if s.key == key {
			return s.value, true
		}
	}
	return "", false
}

func writeHeader(w io.Writer, comments []string) {
	fmt.Fprintln(w, header)
	for _, c := range comments {
		for _, line := range strings.Split(c, "\n") {
			fmt.Fprintf(w, "%%%s\n", line)
		}
	}
	fmt.Fprintln(w)
}

// formatRow prints values separated by spaces with enough digits to
// round-trip exactly.
func formatRow(values ...float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
