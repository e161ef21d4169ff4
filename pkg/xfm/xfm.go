// Package xfm reads and writes MNI transform files (.xfm).
//
// Linear transforms are stored as a Linear_Transform block and can be read
// back. Thin-plate spline transforms are written with their kernel centres
// and weights but are not read: loading a spline file fails with
// ErrUnsupported.
package xfm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"tagalign/pkg/transform"
)

const header = "MNI Transform File"

var (
	// ErrUnsupported is returned for well-formed files this package does
	// not load: non-linear or multi-stage transforms.
	ErrUnsupported = errors.New("unsupported transform file")
	// ErrMalformed is returned for files that do not follow the format.
	ErrMalformed = errors.New("malformed transform file")
	// ErrInvalidResult is returned when asked to save an invalid result.
	ErrInvalidResult = errors.New("transform result is not valid")
)

// Encode writes r to w. Comment lines are written after the header, each
// prefixed with '%'.
func Encode(w io.Writer, r transform.Result, comments ...string) error {
	if !r.Valid() {
		return ErrInvalidResult
	}
	if r.Type() == transform.ThinPlateSpline {
		return EncodeTPS(w, r.TPSPoints(), r.TPSWeights(), comments...)
	}
	return EncodeLinear(w, r.Matrix(), comments...)
}

// Write saves r to path. The file is written to a temporary sibling first
// and renamed into place, so a failed write never leaves a truncated file
// at path.
func Write(path string, r transform.Result, comments ...string) error {
	if !r.Valid() {
		return ErrInvalidResult
	}
	return writeAtomic(path, func(w io.Writer) error {
		return Encode(w, r, comments...)
	})
}

// ReadLinear loads the 4x4 source-to-target matrix from a single-stage
// linear transform file.
func ReadLinear(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening transform file: %w", err)
	}
	defer f.Close()

	m, err := DecodeLinear(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Read loads a linear transform file as a Result. See transform.FromMatrix.
func Read(path string) (transform.Result, error) {
	m, err := ReadLinear(path)
	if err != nil {
		return transform.Result{}, err
	}
	return transform.FromMatrix(m), nil
}

func writeAtomic(path string, encode func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error creating transform file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = encode(bw); err != nil {
		return fmt.Errorf("error encoding transform: %w", err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("error writing transform file: %w", err)
	}
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("error writing transform file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("error writing transform file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error writing transform file: %w", err)
	}
	return nil
}
