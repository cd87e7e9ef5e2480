// plot-channels renders channel-scan CSV output as a heatmap
//
// Channels run left to right and scan cycles top to bottom, each cell
// scaled to -cell pixels so a handful of channels stays readable.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	inputFile  = flag.String("i", "", "Input CSV file from channel-scan")
	outputFile = flag.String("o", "channels.png", "Output PNG file")
	vmin       = flag.Float64("vmin", -120, "Level at the bottom of the color scale (dBm)")
	vmax       = flag.Float64("vmax", -40, "Level at the top of the color scale (dBm)")
	cell       = flag.Int("cell", 16, "Pixels per channel and per cycle")
	colormap   = flag.String("cmap", "viridis", "Colormap: viridis, grayscale")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -i survey.csv [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Render channel-scan CSV output as a PNG heatmap\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -i input file required")
		flag.Usage()
		os.Exit(1)
	}
	if *cell < 1 || *vmax <= *vmin {
		fmt.Fprintln(os.Stderr, "Error: need -cell >= 1 and -vmax > -vmin")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	file, err := os.Open(*inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	channels, rows, err := readSurvey(file)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d cycles over channels %d-%d\n", len(rows), channels[0], channels[len(channels)-1])

	img := render(rows, len(channels), *cell, getColormap(*colormap))

	out, err := os.Create(*outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	b := img.Bounds()
	fmt.Printf("Wrote %dx%d heatmap to %s\n", b.Dx(), b.Dy(), *outputFile)
	fmt.Printf("Color scale: %.1f to %.1f dBm\n", *vmin, *vmax)
	return nil
}

// readSurvey parses the header "timestamp_ms,ch0,ch1,..." and the level
// rows below it. Unparseable levels read as the bottom of the scale.
func readSurvey(r io.Reader) ([]int, [][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty CSV file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error reading CSV: %w", err)
	}
	if len(header) < 2 {
		return nil, nil, fmt.Errorf("invalid header: need a timestamp and one channel column")
	}
	channels := make([]int, len(header)-1)
	for i, col := range header[1:] {
		ch, err := strconv.Atoi(strings.TrimPrefix(col, "ch"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid channel in header column %d: %q", i+1, col)
		}
		channels[i] = ch
	}

	var rows [][]float64
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("error reading CSV: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		levels := make([]float64, len(channels))
		for i := range levels {
			levels[i] = *vmin
			if i+1 < len(rec) {
				if v, err := strconv.ParseFloat(rec[i+1], 64); err == nil {
					levels[i] = v
				}
			}
		}
		rows = append(rows, levels)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no data rows in CSV")
	}
	return channels, rows, nil
}

func render(rows [][]float64, width, cell int, cmap colormapFunc) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width*cell, len(rows)*cell))
	for y, row := range rows {
		for x, level := range row {
			c := cmap(clamp((level-*vmin)/(*vmax-*vmin), 0, 1))
			for dy := 0; dy < cell; dy++ {
				for dx := 0; dx < cell; dx++ {
					img.SetRGBA(x*cell+dx, y*cell+dy, c)
				}
			}
		}
	}
	return img
}

type colormapFunc func(t float64) color.RGBA

func getColormap(name string) colormapFunc {
	if name == "grayscale" {
		return grayscaleColormap
	}
	return viridisColormap
}

func grayscaleColormap(t float64) color.RGBA {
	v := uint8(t * 255)
	return color.RGBA{v, v, v, 255}
}

// Cubic fit of viridis
func viridisColormap(t float64) color.RGBA {
	r := uint8(clamp((-0.0029*t*t*t+1.2284*t*t-0.2547*t+0.2873)*255, 0, 255))
	g := uint8(clamp((0.0168*t*t*t-0.5523*t*t+1.1519*t+0.0058)*255, 0, 255))
	b := uint8(clamp((0.4401*t*t*t-1.4066*t*t+0.6717*t+0.3314)*255, 0, 255))
	return color.RGBA{r, g, b, 255}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
