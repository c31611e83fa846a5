package fat

import (
	"errors"
	"os"
)

// FileBlockDevice adapts a regular *os.File (a disk image, a loop file, a
// /dev/sdX node opened for raw access) into a BlockDevice. Block size must
// be a power of two; every read/write is required to be block-aligned,
// the same contract BytesBlocks enforces for the in-memory test device.
type FileBlockDevice struct {
	f   *os.File
	blk blkIdxer
}

// NewFileBlockDevice wraps f as a BlockDevice with the given block size.
func NewFileBlockDevice(f *os.File, blockSize int) (*FileBlockDevice, error) {
	blk, err := makeBlockIndexer(blockSize)
	if err != nil {
		return nil, err
	}
	return &FileBlockDevice{f: f, blk: blk}, nil
}

func (d *FileBlockDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if d.blk.off(int64(len(dst))) != 0 {
		return 0, errors.New("fat: read length not block-aligned")
	} else if startBlock < 0 {
		return 0, errors.New("fat: invalid startBlock")
	}
	return d.f.ReadAt(dst, startBlock*d.blk.size())
}

func (d *FileBlockDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if d.blk.off(int64(len(data))) != 0 {
		return 0, errors.New("fat: write length not block-aligned")
	} else if startBlock < 0 {
		return 0, errors.New("fat: invalid startBlock")
	}
	return d.f.WriteAt(data, startBlock*d.blk.size())
}

func (d *FileBlockDevice) EraseBlocks(startBlock, numBlocks int64) error {
	if startBlock < 0 || numBlocks <= 0 {
		return errors.New("fat: invalid erase parameters")
	}
	zero := make([]byte, d.blk.size())
	off := startBlock * d.blk.size()
	for i := int64(0); i < numBlocks; i++ {
		if _, err := d.f.WriteAt(zero, off+i*d.blk.size()); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes file data (and, on platforms where syncData provides it,
// just the data without forcing a metadata update) to stable storage.
func (d *FileBlockDevice) Sync() error {
	return syncData(d.f)
}
