package zip

import (
	"archive/zip"
	"bytes"
)

// Sticker is one finished asset destined for a batch download archive.
type Sticker struct {
	Filename string
	Data     []byte
}

// ArchiveStickers bundles finished stickers into a zip archive, preserving
// the order they are passed in.
func ArchiveStickers(stickers []Sticker) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, s := range stickers {
		w, err := zw.Create(s.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(s.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
