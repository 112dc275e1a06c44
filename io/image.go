package io

import (
	"encoding/binary"
	"io"
)

// Image is a program image: instruction words stored big-endian, four
// bytes per word, in address order from the program origin.
type Image struct {
	Data []uint32
}

// Unmarshal loads image data from a reader, replacing any existing data.
func (img *Image) Unmarshal(file io.Reader) (err error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return
	}

	if len(data)%4 != 0 {
		err = ErrImageTruncated
		return
	}

	img.Data = make([]uint32, len(data)/4)
	for n := range img.Data {
		img.Data[n] = binary.BigEndian.Uint32(data[n*4:])
	}

	return
}

// Marshal writes the image's words to a writer.
func (img *Image) Marshal(file io.Writer) (err error) {
	data := make([]byte, 0, len(img.Data)*4)
	for _, word := range img.Data {
		data = binary.BigEndian.AppendUint32(data, word)
	}

	_, err = file.Write(data)

	return
}
