package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"sync"

	"bmsbridge-launcher/internal/state"
)

const iconSize = 32

var toneColors = map[state.Tone]color.RGBA{
	state.ToneOK:      {R: 0x2e, G: 0xa0, B: 0x43, A: 0xff},
	state.ToneWarn:    {R: 0xe3, G: 0xa0, B: 0x08, A: 0xff},
	state.ToneError:   {R: 0xd0, G: 0x3a, B: 0x2f, A: 0xff},
	state.ToneBusy:    {R: 0x1f, G: 0x6f, B: 0xeb, A: 0xff},
	state.ToneNeutral: {R: 0x8b, G: 0x94, B: 0x9e, A: 0xff},
	state.ToneMuted:   {R: 0x8b, G: 0x94, B: 0x9e, A: 0xff},
}

var (
	iconMu    sync.Mutex
	iconCache = map[state.Tone][]byte{}
)

// statusIcon returns an ICO-wrapped PNG of a filled disc in the tone's
// color. Windows wants ICO; the other platforms accept the same bytes.
func statusIcon(tone state.Tone) []byte {
	iconMu.Lock()
	defer iconMu.Unlock()

	if data, ok := iconCache[tone]; ok {
		return data
	}

	c, ok := toneColors[tone]
	if !ok {
		c = toneColors[state.ToneNeutral]
	}

	data, err := wrapICO(discPNG(c))
	if err != nil {
		return nil
	}
	iconCache[tone] = data
	return data
}

func discPNG(c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	center := float64(iconSize-1) / 2
	radius := float64(iconSize)/2 - 2

	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// wrapICO embeds a single PNG image in an ICO container
func wrapICO(pngData []byte) ([]byte, error) {
	var buf bytes.Buffer

	header := struct {
		Reserved uint16
		Type     uint16
		Count    uint16
	}{Type: 1, Count: 1}

	entry := struct {
		Width, Height uint8
		Colors        uint8
		Reserved      uint8
		Planes        uint16
		BitCount      uint16
		Size          uint32
		Offset        uint32
	}{
		Width:    iconSize,
		Height:   iconSize,
		Planes:   1,
		BitCount: 32,
		Size:     uint32(len(pngData)),
		Offset:   6 + 16,
	}

	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
		return nil, err
	}
	buf.Write(pngData)
	return buf.Bytes(), nil
}
