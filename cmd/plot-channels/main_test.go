package main

import (
	"strings"
	"testing"
)

func TestReadSurvey(t *testing.T) {
	in := "timestamp_ms,ch0,ch1,ch2\n" +
		"1000,-80.0,-110.5,-50.0\n" +
		"2000,-81.0,bad\n"
	channels, rows, err := readSurvey(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 3 || channels[2] != 2 {
		t.Errorf("channels = %v", channels)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0][1] != -110.5 {
		t.Errorf("row 0 = %v", rows[0])
	}
	// bad and missing cells take the bottom of the scale
	if rows[1][1] != *vmin || rows[1][2] != *vmin {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestReadSurveyErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"timestamp_ms\n",
		"timestamp_ms,chX\n1,2\n",
		"timestamp_ms,ch0\n",
	} {
		if _, _, err := readSurvey(strings.NewReader(in)); err == nil {
			t.Errorf("readSurvey(%q) accepted", in)
		}
	}
}

func TestRender(t *testing.T) {
	img := render([][]float64{{-120, -40}}, 2, 4, grayscaleColormap)
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds = %v", b)
	}
	if c := img.RGBAAt(0, 0); c.R != 0 {
		t.Errorf("quiet cell = %v", c)
	}
	if c := img.RGBAAt(7, 3); c.R != 255 {
		t.Errorf("loud cell = %v", c)
	}
}
