// Package thumbnail derives small inline preview images from diagram code.
// Generation is strictly best-effort: every failure path logs and returns
// nil so a write that triggered it can still complete.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"log"

	"golang.org/x/image/draw"

	"plantboard/api/internal/render"
)

type Generator struct {
	render   *render.Client
	maxWidth int
}

func NewGenerator(client *render.Client, maxWidth int) *Generator {
	if maxWidth <= 0 {
		maxWidth = 400
	}
	return &Generator{render: client, maxWidth: maxWidth}
}

// Generate fetches the rendered PNG for code, downsizes it to at most
// maxWidth pixels wide and returns it as a data URL. Returns nil for empty
// code and for any fetch or decode failure.
func (g *Generator) Generate(ctx context.Context, code string) *string {
	if code == "" {
		return nil
	}

	data, err := g.render.Fetch(ctx, code, render.FormatPNG)
	if err != nil {
		log.Printf("thumbnail: fetch render: %v", err)
		return nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		log.Printf("thumbnail: decode image: %v", err)
		return nil
	}

	resized := shrinkToWidth(src, g.maxWidth)

	var out bytes.Buffer
	if err := png.Encode(&out, resized); err != nil {
		log.Printf("thumbnail: encode image: %v", err)
		return nil
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(out.Bytes())
	return &dataURL
}

// shrinkToWidth scales src proportionally so its width is at most maxWidth.
// Images already narrow enough pass through untouched — no upscaling.
func shrinkToWidth(src image.Image, maxWidth int) image.Image {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxWidth || width == 0 || height == 0 {
		return src
	}

	newHeight := (height*maxWidth + width/2) / width
	if newHeight < 1 {
		newHeight = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}
