package media

import (
	"path/filepath"
	"strings"
)

type Kind int

const (
	Image Kind = iota
	Video
	Pdf
	Vector
)

func (k Kind) String() string {
	return []string{"image", "video", "pdf", "vector"}[k]
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Route selects the decoding pipeline an asset takes before it reaches
// the shared raster resize/encode step (or the video transcoder).
type Route int

const (
	NativeRaster Route = iota
	HeifDecode
	PdfRasterize
	VectorFlatten
	VideoTranscode
)

func (r Route) String() string {
	return []string{"native", "heif", "pdf", "vector", "video"}[r]
}

// Handler is an entry in the extension dispatch table.
type Handler struct {
	Kind      Kind
	Route     Route
	OutputExt string
}

var dispatch = map[string]Handler{
	".jpg":  {Image, NativeRaster, ".png"},
	".jpeg": {Image, NativeRaster, ".png"},
	".png":  {Image, NativeRaster, ".png"},
	".gif":  {Image, NativeRaster, ".png"},
	".webp": {Image, NativeRaster, ".png"},
	".tif":  {Image, NativeRaster, ".png"},
	".tiff": {Image, NativeRaster, ".png"},
	".heic": {Image, HeifDecode, ".png"},
	".heif": {Image, HeifDecode, ".png"},
	".pdf":  {Pdf, PdfRasterize, ".png"},
	".psd":  {Vector, VectorFlatten, ".png"},
	".ai":   {Vector, VectorFlatten, ".png"},
	".mp4":  {Video, VideoTranscode, ".webm"},
	".mov":  {Video, VideoTranscode, ".webm"},
	".avi":  {Video, VideoTranscode, ".webm"},
	".webm": {Video, VideoTranscode, ".webm"},
}

// Lookup returns the handler for the extension provided (case-insensitive,
// leading dot required).
func Lookup(ext string) (Handler, bool) {
	h, ok := dispatch[strings.ToLower(ext)]
	return h, ok
}

// SupportedExtensions returns every extension in the dispatch table.
func SupportedExtensions() []string {
	out := make([]string, 0, len(dispatch))
	for ext := range dispatch {
		out = append(out, ext)
	}

	return out
}

// Asset is a single supported file discovered inside a gallery directory.
type Asset struct {
	SourcePath string `json:"source_path"`
	Name       string `json:"name"`
	Extension  string `json:"extension"`
	Kind       Kind   `json:"kind"`
	Route      Route  `json:"-"`
	OutputExt  string `json:"-"`
	SizeBytes  int64  `json:"size_bytes"`
}

func newAsset(path string, size int64) (Asset, bool) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	h, ok := Lookup(ext)
	if !ok {
		return Asset{}, false
	}

	return Asset{
		SourcePath: path,
		Name:       name,
		Extension:  ext,
		Kind:       h.Kind,
		Route:      h.Route,
		OutputExt:  h.OutputExt,
		SizeBytes:  size,
	}, true
}
