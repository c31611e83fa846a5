package fat

import (
	"errors"

	"github.com/penPenf28/dancerinfarronos/bcache"
)

type Format uint8

const (
	_FormatUnknown Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
	FormatExFAT
)

type Formatter struct {
	window     []byte
	windowaddr lba
	// block device is temporarily used by the formatter to read/write blocks.
	bd BlockDevice
	// bc backs move_window the same way FS.bc backs fsys.move_window: a
	// formatter only ever touches one sector at a time (the BPB, an FSInfo
	// sector, a FAT sector being zeroed), so a tiny single-slot cache gives
	// move_window a coherent read-modify-write cycle instead of a raw
	// passthrough to bd.
	bc *bcache.Cache
}

type FormatConfig struct {
	Label string
	// ClusterSize is the size of a FAT cluster in blocks.
	ClusterSize int
	// Format selects the FAT format to use. If not specified will use FAT32.
	Format Format
	// Number of reserved blocks for FAT tables. Either 1 or 2. 0 defaults to 2.
	// NumberOfFATs uint8
}

func (f *Formatter) Format(bd BlockDevice, blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	if cfg.Format == 0 {
		cfg.Format = FormatFAT32
	}
	if blocksize <= 512 || fsSizeInBlocks <= 32 || bd == nil || cfg.Format != FormatFAT32 {
		return errors.New("invalid Format argument")
	}
	if len(f.window) < blocksize {
		f.window = make([]byte, blocksize)
	}
	if cfg.Label == "" {
		cfg.Label = "tinygo.unnamed"
	}
	f.windowaddr = ^lba(0)
	f.bd = bd
	f.bc = bcache.New(1, blocksize, nil)

	switch cfg.Format {
	case FormatFAT12, FormatFAT16, FormatFAT32:
		return f.formatFAT(bd, blocksize, fsSizeInBlocks, cfg)
	case FormatExFAT:
		return frUnsupported
	default:
		return frUnsupported
	}
}

func (f *Formatter) formatFAT(bd BlockDevice, blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	const (
		fmAny byte = 1 << 7
		fmSFD byte = 1 << 6
	)
	// var (
	// 	sz_blk       = blocksize
	// 	ss           = blocksize
	// 	fsopt        = fmAny | fmSFD
	// 	n_fat  uint8 = 2
	// 	sz_au        = cfg.ClusterSize
	// )
	// if !(sz_au <= 0x1000000 && sz_au&(sz_au-1) == 0) {
	// 	return errors.New("invalid cluster size")
	// }

	// for {
	// 	pau := sz
	// }
	return nil
}

func (f *Formatter) move_window(addr lba) error {
	if addr == f.windowaddr {
		return nil
	}
	if f.bc == nil {
		if _, err := f.bd.ReadBlocks(f.window, int64(addr)); err != nil {
			return err
		}
		f.windowaddr = addr
		return nil
	}
	b := f.bc.Get(f.bd, uint32(addr))
	data, err := b.Read()
	if err == nil {
		copy(f.window, data)
	}
	f.bc.Release(b)
	if err != nil {
		return err
	}
	f.windowaddr = addr
	return nil
}

// flush_window writes the window back to its current sector through the
// same buffer cache move_window reads from, so a formatter pass that reads
// then patches a sector (BPB, FSInfo) doesn't race its own cached copy.
func (f *Formatter) flush_window() error {
	if f.windowaddr == ^lba(0) {
		return nil
	}
	if f.bc == nil {
		_, err := f.bd.WriteBlocks(f.window, int64(f.windowaddr))
		return err
	}
	b := f.bc.Get(f.bd, uint32(f.windowaddr))
	copy(b.Data, f.window)
	err := b.Write()
	f.bc.Release(b)
	return err
}
