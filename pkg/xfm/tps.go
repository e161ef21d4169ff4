package xfm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/golang/geo/r3"
)

// EncodeTPS writes a thin-plate spline section: the n kernel centres under
// Points and the n+4 weight rows under Displacements.
func EncodeTPS(w io.Writer, points, weights []r3.Vector, comments ...string) error {
	if len(points) == 0 || len(weights) != len(points)+4 {
		return fmt.Errorf("thin-plate spline needs n+4 weight rows for n points, got %d and %d",
			len(weights), len(points))
	}

	bw := bufio.NewWriter(w)
	writeHeader(bw, comments)
	fmt.Fprintln(bw, "Transform_Type = Thin_Plate_Spline_Transform;")
	fmt.Fprintln(bw, "Invert_Flag = True;")
	fmt.Fprintln(bw, "Number_Dimensions = 3;")
	writeVectors(bw, "Points", points)
	writeVectors(bw, "Displacements", weights)
	return bw.Flush()
}

func writeVectors(w io.Writer, key string, vs []r3.Vector) {
	fmt.Fprintf(w, "%s =\n", key)
	for i, v := range vs {
		end := ""
		if i == len(vs)-1 {
			end = ";"
		}
		fmt.Fprintf(w, " %s%s\n", formatRow(v.X, v.Y, v.Z), end)
	}
}
