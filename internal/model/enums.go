package model

// ImageKind selects one of the two rendered images of an archived park.
type ImageKind string

const (
	ImageFullsize  ImageKind = "fullsize"
	ImageThumbnail ImageKind = "thumbnail"
)

// Zoom is the screenshotter zoom level used to render the image.
func (k ImageKind) Zoom() int {
	if k == ImageFullsize {
		return 0
	}
	return 3
}

// Column is the parks column holding the image file name.
func (k ImageKind) Column() string {
	if k == ImageFullsize {
		return "largeimg"
	}
	return "thumbnail"
}
