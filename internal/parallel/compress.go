package parallel

import "github.com/DataDog/zstd"

const compressionLevel = 1

// Compress packs a parcel before it is exchanged. Empty parcels stay empty.
func Compress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return zstd.CompressLevel(nil, b, compressionLevel)
}

func Decompress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return zstd.Decompress(nil, b)
}
