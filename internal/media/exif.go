package media

import (
	"encoding/binary"
	"image"
)

const exifOrientationTag = 0x0112

// applyEXIFOrientation returns img rotated/flipped so that it displays
// upright, based on the JPEG EXIF orientation in data. Non-JPEG data and
// orientation 1 return img unchanged.
func applyEXIFOrientation(data []byte, img image.Image) image.Image {
	orient, ok := jpegOrientation(data)
	if !ok || orient <= 1 || orient > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Orientations 5-8 swap the axes.
	dw, dh := w, h
	if orient >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orient {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// jpegOrientation walks the JPEG markers up to start-of-scan looking for an
// APP1 Exif segment.
func jpegOrientation(b []byte) (int, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1] != 0xD8 {
		return 0, false
	}
	i := 2
	for i+4 <= len(b) {
		if b[i] != 0xFF {
			return 0, false
		}
		marker := b[i+1]
		if marker == 0xD9 || marker == 0xDA {
			break
		}
		segLen := int(binary.BigEndian.Uint16(b[i+2 : i+4]))
		start := i + 4
		end := i + 2 + segLen
		if segLen < 2 || end > len(b) {
			break
		}
		if marker == 0xE1 {
			seg := b[start:end]
			if len(seg) >= 6 && string(seg[:6]) == "Exif\x00\x00" {
				return tiffOrientation(seg[6:])
			}
		}
		i = end
	}
	return 0, false
}

func tiffOrientation(tiff []byte) (int, bool) {
	if len(tiff) < 8 {
		return 0, false
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, false
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return 0, false
	}
	ifd := int(order.Uint32(tiff[4:8]))
	if ifd <= 0 || ifd+2 > len(tiff) {
		return 0, false
	}
	count := int(order.Uint16(tiff[ifd : ifd+2]))
	off := ifd + 2
	for n := 0; n < count && off+12 <= len(tiff); n++ {
		if order.Uint16(tiff[off:off+2]) == exifOrientationTag {
			// Type 3 is SHORT; anything else is treated as upright.
			if order.Uint16(tiff[off+2:off+4]) != 3 {
				return 1, true
			}
			v := int(order.Uint16(tiff[off+8 : off+10]))
			if v < 1 || v > 8 {
				return 0, false
			}
			return v, true
		}
		off += 12
	}
	return 0, false
}
