package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// iconBytes renders the tray icon: a filmstrip square with a splice mark.
func iconBytes() []byte {
	const size = 32
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	film := color.RGBA{R: 0x22, G: 0x2b, B: 0x3a, A: 0xff}
	hole := color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	splice := color.RGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := film
			switch {
			case (x < 4 || x >= size-4) && y%6 < 3:
				c = hole
			case x >= 14 && x < 18:
				c = splice
			}
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
