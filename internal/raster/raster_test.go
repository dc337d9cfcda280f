package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestToGray_Luma(t *testing.T) {
	tests := []struct {
		name     string
		color    color.Color
		expected uint8
	}{
		{"white", color.White, 255},
		{"black", color.Black, 0},
		{"pure red", color.RGBA{255, 0, 0, 255}, 76},
		{"pure green", color.RGBA{0, 255, 0, 255}, 150},
		{"pure blue", color.RGBA{0, 0, 255, 255}, 29},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gray := ToGray(createTestImage(4, 4, tc.color))
			if got := gray.GrayAt(1, 1).Y; got != tc.expected {
				t.Errorf("ToGray(%s) = %d, want %d", tc.name, got, tc.expected)
			}
		})
	}
}

func TestToGray_SubImageOrigin(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	src.SetGray(5, 5, color.Gray{Y: 200})

	sub := src.SubImage(image.Rect(5, 5, 8, 8))
	gray := ToGray(sub)

	if gray.Bounds() != image.Rect(0, 0, 3, 3) {
		t.Fatalf("bounds = %v, want (0,0)-(3,3)", gray.Bounds())
	}
	if gray.GrayAt(0, 0).Y != 200 {
		t.Errorf("GrayAt(0,0) = %d, want 200", gray.GrayAt(0, 0).Y)
	}
}

func TestCrop_ClipsToBounds(t *testing.T) {
	img := createTestImage(100, 80, color.White)

	cropped, err := Crop(img, image.Rect(90, 70, 120, 100))
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	if got := cropped.Bounds().Size(); got != image.Pt(10, 10) {
		t.Errorf("cropped size = %v, want 10x10", got)
	}
}

func TestCrop_EmptyRegion(t *testing.T) {
	img := createTestImage(50, 50, color.White)

	tests := []struct {
		name   string
		region image.Rectangle
	}{
		{"outside", image.Rect(60, 60, 80, 80)},
		{"zero width", image.Rect(10, 10, 10, 30)},
		{"negative", image.Rect(-30, -30, -10, -10)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Crop(img, tc.region)
			if !errors.Is(err, ErrEmptyRegion) {
				t.Errorf("Crop(%v) error = %v, want ErrEmptyRegion", tc.region, err)
			}
		})
	}
}

func TestNormalize_FixedSize(t *testing.T) {
	frame := createTestImage(640, 480, color.RGBA{120, 130, 140, 255})
	size := Square(200)

	regions := []image.Rectangle{
		image.Rect(100, 100, 180, 180), // smaller than target
		image.Rect(0, 0, 400, 400),     // larger than target
		image.Rect(600, 400, 700, 500), // partly outside
	}

	for _, r := range regions {
		gray, err := Normalize(frame, r, size)
		if err != nil {
			t.Fatalf("Normalize(%v) error = %v", r, err)
		}
		if err := CheckSize(gray, size); err != nil {
			t.Errorf("Normalize(%v): %v", r, err)
		}
	}
}

func TestFit_NoCopyWhenSized(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 200, 200))
	if Fit(g, Square(200)) != g {
		t.Error("Fit() should return the input when already sized")
	}
	if got := Fit(g, Square(50)).Bounds().Size(); got != image.Pt(50, 50) {
		t.Errorf("Fit() size = %v, want 50x50", got)
	}
}

func TestEncodeDecode_PNGIsLossless(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range g.Pix {
		g.Pix[i] = uint8(i * 3)
	}

	data, err := EncodeBytes("1.png", g)
	if err != nil {
		t.Fatalf("EncodeBytes() error = %v", err)
	}
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	back := ToGray(img)
	if !bytes.Equal(back.Pix, g.Pix) {
		t.Error("PNG round trip changed pixels")
	}
}

func TestDecode_InvalidData(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected error for invalid image data")
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"1.png", true},
		{"2.JPG", true},
		{"1.3.jpeg", true},
		{"x.bmp", true},
		{"notes.txt", false},
		{".DS_Store", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsImageFile(tc.name); got != tc.want {
				t.Errorf("IsImageFile(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}
