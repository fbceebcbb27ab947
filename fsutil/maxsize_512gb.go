//go:build mips64 || mips64le

package fsutil

// MaxSize is the largest file Map will memory-map.
const MaxSize = 0x8000000000 // 512GB
