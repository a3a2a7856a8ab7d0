package preview

import "image"

type sheetEncoder interface {
	encode(img image.Image, format string, quality int) ([]byte, error)
}

// EncodeSheet serializes a rendered sheet. Formats are png, jpeg (or
// jpg), and webp; anything else falls back to png. webp requires the
// govips build tag.
func EncodeSheet(img image.Image, format string, quality int) ([]byte, error) {
	return newSheetEncoder().encode(img, normalizeSheetFormat(format), quality)
}

func normalizeSheetFormat(format string) string {
	switch format {
	case "jpg":
		return "jpeg"
	case "jpeg", "png", "webp":
		return format
	default:
		return "png"
	}
}
