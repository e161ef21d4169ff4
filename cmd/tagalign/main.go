package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"tagalign/internal/models"
	"tagalign/pkg/config"
	"tagalign/pkg/geometry"
	"tagalign/pkg/transform"
	"tagalign/pkg/xfm"
)

func main() {
	// Parse command line arguments
	tagsPath := flag.String("tags", "", "YAML file of target/source tag pairs")
	family := flag.String("type", "", "Transform family: rigid, similarity, 9, 10, affine, tps (default from config)")
	outPath := flag.String("out", "", "Output .xfm file (optional)")
	configPath := flag.String("config", "tagalign.yaml", "Configuration file")
	point := flag.String("point", "", "Map a point x,y,z forward and inverse through the result")
	writeConfig := flag.Bool("write-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *tagsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Output.Verbose {
		transform.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	f, err := cfg.Family()
	if *family != "" {
		f, err = transform.ParseFamily(*family)
	}
	if err != nil {
		log.Fatalf("Invalid transform type: %v", err)
	}

	var query *r3.Vector
	if *point != "" {
		p, err := parsePoint(*point)
		if err != nil {
			log.Fatalf("Invalid point: %v", err)
		}
		query = &p
	}

	set, err := models.LoadTags(*tagsPath)
	if err != nil {
		log.Fatalf("Failed to load tags: %v", err)
	}

	targets, sources := set.Targets(), set.Sources()
	fmt.Printf("Fitting %s to %d tag pairs...\n", f, len(set.Pairs))

	result := transform.ComputeWithSettings(targets, sources, f, cfg.Settings())
	if !result.Valid() {
		log.Fatalf("Registration failed: %s needs at least %d tag pairs with matching lists", f, f.MinPairs())
	}

	report(set, result)

	if query != nil {
		ev := transform.NewEvaluator(result, cfg.InverseOptions())
		fwd := ev.Forward(*query)
		inv, ok := ev.Inverse(*query)
		fmt.Printf("\nPoint %s\n", formatPoint(*query))
		fmt.Printf("  forward: %s\n", formatPoint(fwd))
		fmt.Printf("  inverse: %s", formatPoint(inv))
		if !ok {
			fmt.Print(" (not converged)")
		}
		fmt.Println()
	}

	if *outPath != "" {
		comments := []string{cfg.Output.Comment}
		if set.Description != "" {
			comments = append(comments, set.Description)
		}
		if err := xfm.Write(*outPath, result, comments...); err != nil {
			log.Fatalf("Failed to write transform: %v", err)
		}
		fmt.Printf("\nTransform saved to: %s\n", *outPath)
	}
}

// report prints per-pair residuals, RMS and the worst pair
func report(set *models.TagSet, result transform.Result) {
	fmt.Printf("\nResiduals (%s):\n", result.Type())
	fmt.Printf("=======================================\n")
	for i, r := range result.Residuals() {
		fmt.Printf("%-12s %10.4f mm\n", set.Pairs[i].Label(i), r)
	}
	fmt.Printf("RMS: %.4f mm\n", result.RMS())

	worst, dist := result.WorstPair()
	if worst < 0 {
		return
	}
	fmt.Printf("Worst pair: %s (%.4f mm)", set.Pairs[worst].Label(worst), dist)

	// Neighbouring landmark helps tell a mislabelled tag from a bad one.
	targets := set.Targets()
	others := append(append([]r3.Vector(nil), targets[:worst]...), targets[worst+1:]...)
	if pos, d := geometry.NewIndex(others).Nearest(targets[worst]); pos >= 0 {
		if pos >= worst {
			pos++
		}
		fmt.Printf(", nearest tag %s at %.2f mm", set.Pairs[pos].Label(pos), d)
	}
	fmt.Println()

	if m := result.Matrix(); m != nil {
		fmt.Printf("\nMatrix (source to target%s):\n", affineSuffix(result))
		for i := 0; i < 3; i++ {
			fmt.Printf("  %12.6f %12.6f %12.6f %12.6f\n", m.At(i, 0), m.At(i, 1), m.At(i, 2), m.At(i, 3))
		}
	}
}

func affineSuffix(r transform.Result) string {
	if r.Type() == transform.ThinPlateSpline {
		return ", affine part"
	}
	return ""
}

func parsePoint(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vector{}, err
		}
		v[i] = f
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func formatPoint(p r3.Vector) string {
	return fmt.Sprintf("%.4f %.4f %.4f", p.X, p.Y, p.Z)
}
